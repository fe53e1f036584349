package domain

import (
	"fmt"
	"strconv"
)

// CommandKind names a button action
type CommandKind string

const (
	CmdMyProducts          CommandKind = "my_products"
	CmdMyAccount           CommandKind = "my_account"
	CmdPreferences         CommandKind = "preferences"
	CmdSchedulePost        CommandKind = "schedule_post"
	CmdContactUs           CommandKind = "contact_us"
	CmdExplore             CommandKind = "explore"
	CmdHelp                CommandKind = "help"
	CmdBackToMain          CommandKind = "back_to_main"
	CmdAddProduct          CommandKind = "add_product"
	CmdListMyProducts      CommandKind = "list_my_products"
	CmdCategory            CommandKind = "category"
	CmdCustomCategory      CommandKind = "custom_category"
	CmdBackToCategories    CommandKind = "back_to_categories"
	CmdSubcategory         CommandKind = "subcategory"
	CmdCustomSubcategory   CommandKind = "custom_subcategory"
	CmdSkipSubcategory     CommandKind = "skip_subcategory"
	CmdPostNow             CommandKind = "post_now"
	CmdScheduleLater       CommandKind = "schedule_later"
	CmdSaveOnly            CommandKind = "save_only"
	CmdPostListing         CommandKind = "post_listing"
	CmdDeleteListing       CommandKind = "delete_listing"
	CmdConfirmDelete       CommandKind = "confirm_delete"
	CmdScheduleListing     CommandKind = "schedule_listing"
	CmdListingDetails      CommandKind = "listing_details"
	CmdContactSeller       CommandKind = "contact_seller"
	CmdPage                CommandKind = "page"
	CmdToggleAutoPost      CommandKind = "toggle_auto_post"
	CmdToggleNotifications CommandKind = "toggle_notifications"
	CmdToggleTheme         CommandKind = "toggle_theme"
	CmdConfirmRegistration CommandKind = "confirm_registration"
	CmdRestartRegistration CommandKind = "restart_registration"
	CmdSharePhone          CommandKind = "share_phone"
	CmdCancel              CommandKind = "cancel"
)

type argRule int

const (
	argNone argRule = iota
	argText
	argListingID
	argPage
)

var commandArgs = map[CommandKind]argRule{
	CmdMyProducts:          argNone,
	CmdMyAccount:           argNone,
	CmdPreferences:         argNone,
	CmdSchedulePost:        argNone,
	CmdContactUs:           argNone,
	CmdExplore:             argNone,
	CmdHelp:                argNone,
	CmdBackToMain:          argNone,
	CmdAddProduct:          argNone,
	CmdListMyProducts:      argNone,
	CmdCategory:            argText,
	CmdCustomCategory:      argNone,
	CmdBackToCategories:    argNone,
	CmdSubcategory:         argText,
	CmdCustomSubcategory:   argNone,
	CmdSkipSubcategory:     argNone,
	CmdPostNow:             argNone,
	CmdScheduleLater:       argNone,
	CmdSaveOnly:            argNone,
	CmdPostListing:         argListingID,
	CmdDeleteListing:       argListingID,
	CmdConfirmDelete:       argListingID,
	CmdScheduleListing:     argListingID,
	CmdListingDetails:      argListingID,
	CmdContactSeller:       argListingID,
	CmdPage:                argPage,
	CmdToggleAutoPost:      argNone,
	CmdToggleNotifications: argNone,
	CmdToggleTheme:         argNone,
	CmdConfirmRegistration: argNone,
	CmdRestartRegistration: argNone,
	CmdSharePhone:          argNone,
	CmdCancel:              argNone,
}

// Command is a decoded button press
type Command struct {
	Kind CommandKind `json:"cmd"`
	Arg  string      `json:"arg,omitempty"`
}

func NewCommand(kind CommandKind) Command { return Command{Kind: kind} }

func CommandWithArg(kind CommandKind, arg string) Command { return Command{Kind: kind, Arg: arg} }

// PageCommand builds a pagination command
func PageCommand(page int) Command {
	return Command{Kind: CmdPage, Arg: strconv.Itoa(page)}
}

// ParseCommand decodes a button payload and checks its argument
func ParseCommand(value map[string]interface{}) (Command, error) {
	kind, _ := value["cmd"].(string)
	arg, _ := value["arg"].(string)
	return NewValidatedCommand(CommandKind(kind), arg)
}

// NewValidatedCommand checks the kind is known and the argument fits it
func NewValidatedCommand(kind CommandKind, arg string) (Command, error) {
	rule, ok := commandArgs[kind]
	if !ok {
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, kind)
	}
	cmd := Command{Kind: kind, Arg: arg}
	switch rule {
	case argNone:
		cmd.Arg = ""
	case argText, argListingID:
		if arg == "" {
			return Command{}, fmt.Errorf("%w: %s requires an argument", ErrUnknownCommand, kind)
		}
	case argPage:
		if _, err := cmd.Page(); err != nil {
			return Command{}, err
		}
	}
	return cmd, nil
}

// Page returns the page number of a pagination command
func (c Command) Page() (int, error) {
	n, err := strconv.Atoi(c.Arg)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: bad page %q", ErrUnknownCommand, c.Arg)
	}
	return n, nil
}

// Value encodes the command as a button payload
func (c Command) Value() map[string]interface{} {
	v := map[string]interface{}{"cmd": string(c.Kind)}
	if c.Arg != "" {
		v["arg"] = c.Arg
	}
	return v
}
