package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/DevRickLin/feishu-market-bot/internal/biz/domain"
	"github.com/DevRickLin/feishu-market-bot/internal/biz/repo"
)

// EngineConfig carries the settings the conversation needs to render replies
type EngineConfig struct {
	Catalog  *domain.Catalog
	Location *time.Location

	// PostLinkTemplate builds View Post links, %s is the message ref
	PostLinkTemplate string
	// AdminName is shown on the Contact Us prompt
	AdminName string

	AutoPostEnabled  bool
	AutoPostInterval time.Duration
}

// ConversationUsecase is the conversation state machine.
// It maps (session, event) to a new session and the effects to render.
type ConversationUsecase struct {
	profileRepo    repo.ProfileRepo
	preferenceRepo repo.PreferenceRepo
	messageRepo    repo.MessageRepo
	validator      repo.ImageValidator
	listingUC      *ListingUsecase
	scheduleUC     *ScheduleUsecase
	publisher      Publisher
	cfg            EngineConfig

	now func() time.Time
	log zerolog.Logger
}

// NewConversationUsecase creates a new conversation usecase
func NewConversationUsecase(
	profileRepo repo.ProfileRepo,
	preferenceRepo repo.PreferenceRepo,
	messageRepo repo.MessageRepo,
	validator repo.ImageValidator,
	listingUC *ListingUsecase,
	scheduleUC *ScheduleUsecase,
	publisher Publisher,
	cfg EngineConfig,
) *ConversationUsecase {
	if cfg.Catalog == nil {
		cfg.Catalog = &domain.Catalog{}
	}
	if cfg.Catalog.PageSize <= 0 {
		cfg.Catalog.PageSize = 3
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &ConversationUsecase{
		profileRepo:    profileRepo,
		preferenceRepo: preferenceRepo,
		messageRepo:    messageRepo,
		validator:      validator,
		listingUC:      listingUC,
		scheduleUC:     scheduleUC,
		publisher:      publisher,
		cfg:            cfg,
		now:            time.Now,
		log:            log.With().Str("component", "conversation").Logger(),
	}
}

// turn collects the output of one HandleEvent call
type turn struct {
	ctx     context.Context
	s       *domain.Session
	profile *domain.Profile
	effects []domain.Effect
}

func (t *turn) reply(text string, buttons ...[]domain.Button) {
	t.effects = append(t.effects, domain.Reply(text, buttons...))
}

func (t *turn) reprompt(text string, buttons ...[]domain.Button) {
	t.effects = append(t.effects, domain.Reprompt(text, buttons...))
}

func (t *turn) add(e domain.Effect) {
	t.effects = append(t.effects, e)
}

func (t *turn) userID() string {
	return t.s.UserID
}

// HandleEvent runs one conversation turn. The input session is not modified.
func (uc *ConversationUsecase) HandleEvent(ctx context.Context, sess *domain.Session, ev domain.Event) (*domain.Session, []domain.Effect) {
	t := &turn{ctx: ctx, s: sess.Clone()}

	profile, err := uc.profileRepo.Get(ctx, sess.UserID)
	if err != nil {
		uc.fail(t, fmt.Errorf("load profile: %w", err))
		return t.s, t.effects
	}
	t.profile = profile

	uc.log.Debug().
		Str("user_id", sess.UserID).
		Str("stage", sess.Stage.String()).
		Str("event", ev.Kind.String()).
		Msg("handling event")

	uc.dispatch(t, ev)
	return t.s, t.effects
}

func (uc *ConversationUsecase) dispatch(t *turn, ev domain.Event) {
	// Events valid from every stage
	switch {
	case ev.Kind == domain.EventStart:
		uc.start(t, ev.DeepLink)
		return
	case ev.Kind == domain.EventCancel, ev.IsCommand(domain.CmdCancel):
		uc.cancel(t)
		return
	case ev.IsCommand(domain.CmdContactSeller):
		uc.start(t, &domain.DeepLink{Kind: domain.DeepLinkContact, ListingID: ev.Command.Arg})
		return
	case ev.IsCommand(domain.CmdHelp):
		uc.help(t)
		return
	}

	if t.s.Stage.IsListingFlow() && t.s.Draft == nil {
		uc.fail(t, fmt.Errorf("stage %s without draft", t.s.Stage))
		return
	}

	switch t.s.Stage {
	case domain.StageRegisterName:
		uc.registerName(t, ev)
	case domain.StageRegisterPhone:
		uc.registerPhone(t, ev)
	case domain.StageRegisterAddress:
		uc.registerAddress(t, ev)
	case domain.StageRegisterConfirm:
		uc.registerConfirm(t, ev)
	case domain.StageSelectCategory:
		uc.selectCategory(t, ev)
	case domain.StageSelectSubcategory:
		uc.selectSubcategory(t, ev)
	case domain.StageCustomTag:
		uc.customTag(t, ev)
	case domain.StageProductName:
		uc.productName(t, ev)
	case domain.StageProductDescription:
		uc.productDescription(t, ev)
	case domain.StageProductPrice:
		uc.productPrice(t, ev)
	case domain.StageProductImage:
		uc.productImage(t, ev)
	case domain.StageSchedulePostDecision:
		uc.schedulePostDecision(t, ev)
	case domain.StageSchedulePostTime:
		uc.schedulePostTime(t, ev)
	case domain.StageContactMessage:
		uc.contactMessage(t, ev)
	default:
		uc.mainMenu(t, ev)
	}
}

// fail logs an unexpected error and returns the user to the main menu
func (uc *ConversationUsecase) fail(t *turn, err error) {
	uc.log.Error().Err(err).Str("user_id", t.userID()).Str("stage", t.s.Stage.String()).Msg("conversation turn failed")
	t.s.ToMainMenu()
	t.reply("Something went wrong. Returning to main menu.", mainMenuKeyboard()...)
}

// notFound tells the user the listing is gone and returns to the main menu
func (uc *ConversationUsecase) notFound(t *turn, text string) {
	t.s.ToMainMenu()
	t.reply(text, mainMenuKeyboard()...)
}

// listingError routes repository errors of listing actions
func (uc *ConversationUsecase) listingError(t *turn, err error) {
	switch {
	case errors.Is(err, domain.ErrListingNotFound):
		uc.notFound(t, "Product not found.")
	case errors.Is(err, domain.ErrNotOwner):
		t.s.ToMainMenu()
		t.reply("You can only manage your own products.", mainMenuKeyboard()...)
	default:
		uc.fail(t, err)
	}
}

func (uc *ConversationUsecase) start(t *turn, link *domain.DeepLink) {
	t.s.ToMainMenu()
	t.s.PendingContactListingID = ""

	if !t.profile.IsRegistered() {
		t.s.Registration = domain.Registration{}
		t.s.Stage = domain.StageRegisterName
		if link != nil {
			uc.log.Info().Str("user_id", t.userID()).Str("listing_id", link.ListingID).Msg("unregistered user, contact request pending")
			t.s.PendingContactListingID = link.ListingID
			t.reply("Welcome! Before you can contact the seller, please complete a quick registration.\n\nWhat is your full name?")
			return
		}
		t.reply("Welcome! Before you can use the bot, please complete a quick registration.\n\nWhat is your full name?")
		return
	}

	if link != nil {
		switch link.Kind {
		case domain.DeepLinkItem:
			uc.showDetails(t, link.ListingID)
		default:
			uc.showSellerContact(t, link.ListingID)
		}
		return
	}

	t.reply(fmt.Sprintf("Hi %s! Welcome to the Product Management Bot.\n\nUse the menu below to navigate:", t.profile.Name), mainMenuKeyboard()...)
}

func (uc *ConversationUsecase) cancel(t *turn) {
	t.s.ToMainMenu()
	t.s.Registration = domain.Registration{}
	t.s.PendingContactListingID = ""
	t.reply("Operation cancelled. Returning to main menu.", mainMenuKeyboard()...)
}

func (uc *ConversationUsecase) help(t *turn) {
	var sb strings.Builder
	sb.WriteString("📱 **Product Management Bot Help**\n\n")
	sb.WriteString("**Main Menu Options:**\n")
	sb.WriteString("📦 **My Products** - View and manage your products\n")
	sb.WriteString("👤 **My Account** - View your account information\n")
	sb.WriteString("⭐ **Preferences** - Set your preferences\n")
	sb.WriteString("📅 **Schedule Post** - Schedule a product post\n")
	sb.WriteString(fmt.Sprintf("📥 **Contact Us** - Send a message to the admin %s\n", uc.cfg.AdminName))
	sb.WriteString("🔍 **Explore Products** - Browse all products\n\n")
	sb.WriteString("**Other Commands:**\n")
	sb.WriteString("/start - Show the main menu\n")
	sb.WriteString("/help - Show this help message\n")
	sb.WriteString("/cancel - Cancel the current operation\n\n")
	if uc.cfg.AutoPostEnabled {
		sb.WriteString("Auto-posting is enabled.\n")
		sb.WriteString(fmt.Sprintf("Products are automatically posted every %s.", formatInterval(uc.cfg.AutoPostInterval)))
	} else {
		sb.WriteString("Auto-posting is disabled.")
	}

	if t.s.Stage == domain.StageMainMenu {
		t.reply(sb.String(), mainMenuKeyboard()...)
		return
	}
	t.reply(sb.String())
}

// Registration

func (uc *ConversationUsecase) registerName(t *turn, ev domain.Event) {
	name := strings.TrimSpace(ev.Text)
	if ev.Kind != domain.EventText || name == "" {
		uc.reprompt(t)
		return
	}
	t.s.Registration.Name = name
	t.s.Stage = domain.StageRegisterPhone
	t.reply(
		"Thank you! Now, please share your phone number by clicking the button below or enter it manually in the format: +251xxxxxxxxx",
		sharePhoneRow(),
	)
}

func (uc *ConversationUsecase) registerPhone(t *turn, ev domain.Event) {
	var phone string
	switch ev.Kind {
	case domain.EventContact:
		phone = domain.NormalizeContactPhone(ev.Phone)
	case domain.EventText:
		phone = ev.Text
	default:
		uc.reprompt(t)
		return
	}

	valid, err := domain.ValidatePhone(phone)
	if err != nil {
		t.reprompt("Please enter a valid Ethiopian phone number in the format +251xxxxxxxxx\nFor example: +251912345678", sharePhoneRow())
		return
	}
	t.s.Registration.Phone = valid
	t.s.Stage = domain.StageRegisterAddress
	t.reply("Great! Now, please enter your address:")
}

func (uc *ConversationUsecase) registerAddress(t *turn, ev domain.Event) {
	address := strings.TrimSpace(ev.Text)
	if ev.Kind != domain.EventText || address == "" {
		uc.reprompt(t)
		return
	}
	t.s.Registration.Address = address
	t.s.Stage = domain.StageRegisterConfirm
	text, buttons := uc.confirmPrompt(t.s)
	t.reply(text, buttons...)
}

func (uc *ConversationUsecase) registerConfirm(t *turn, ev domain.Event) {
	switch {
	case ev.IsCommand(domain.CmdConfirmRegistration):
	case ev.IsCommand(domain.CmdRestartRegistration):
		t.s.Registration = domain.Registration{}
		t.s.Stage = domain.StageRegisterName
		t.reply("Let's start over. What is your full name?")
		return
	default:
		uc.reprompt(t)
		return
	}

	reg := t.s.Registration
	profile := &domain.Profile{
		UserID:               t.userID(),
		Name:                 reg.Name,
		Phone:                reg.Phone,
		Address:              reg.Address,
		RegistrationComplete: true,
		RegisteredAt:         uc.now(),
	}
	if err := uc.profileRepo.Save(t.ctx, profile); err != nil {
		uc.log.Error().Err(err).Str("user_id", t.userID()).Msg("failed to save profile")
		t.reprompt("❌ Could not save your registration. Please try again.", confirmRow())
		return
	}
	t.profile = profile
	uc.log.Info().Str("user_id", t.userID()).Msg("registration completed")

	t.s.Registration = domain.Registration{}
	t.s.ToMainMenu()
	t.reply("Registration complete! Welcome to the Product Management Bot.", mainMenuKeyboard()...)

	if id := t.s.PendingContactListingID; id != "" {
		t.s.PendingContactListingID = ""
		uc.log.Info().Str("user_id", t.userID()).Str("listing_id", id).Msg("resuming pending contact request")
		uc.showSellerContact(t, id)
	}
}

// Contact Us

func (uc *ConversationUsecase) contactMessage(t *turn, ev domain.Event) {
	message := strings.TrimSpace(ev.Text)
	if ev.Kind != domain.EventText || message == "" {
		uc.reprompt(t)
		return
	}

	from := t.userID()
	if t.profile != nil && t.profile.Name != "" {
		from = fmt.Sprintf("%s (%s)", t.profile.Name, t.userID())
	}
	text := fmt.Sprintf("📩 New Contact Message\n\nFrom: %s\n\nMessage:\n%s", from, message)

	t.s.ToMainMenu()
	if err := uc.messageRepo.NotifyAdmin(t.ctx, text); err != nil {
		uc.log.Error().Err(err).Str("user_id", t.userID()).Msg("failed to forward message to admin")
		t.reply("❌ Sorry, your message could not be delivered. Please try again later.", mainMenuKeyboard()...)
		return
	}
	uc.log.Info().Str("user_id", t.userID()).Msg("contact message forwarded")
	t.reply(fmt.Sprintf("✅ Your message has been sent to %s. They will get back to you if needed.", uc.adminName()), mainMenuKeyboard()...)
}

func (uc *ConversationUsecase) adminName() string {
	if uc.cfg.AdminName == "" {
		return "the admin"
	}
	return uc.cfg.AdminName
}

// reprompt repeats the question of the current stage
func (uc *ConversationUsecase) reprompt(t *turn) {
	text, buttons := uc.stagePrompt(t.s)
	t.reprompt(text, buttons...)
}

// stagePrompt renders the question a stage is waiting on
func (uc *ConversationUsecase) stagePrompt(s *domain.Session) (string, [][]domain.Button) {
	switch s.Stage {
	case domain.StageRegisterName:
		return "What is your full name?", nil
	case domain.StageRegisterPhone:
		return "Please share your phone number or enter it in the format +251xxxxxxxxx", [][]domain.Button{sharePhoneRow()}
	case domain.StageRegisterAddress:
		return "Please enter your address:", nil
	case domain.StageRegisterConfirm:
		return uc.confirmPrompt(s)
	case domain.StageSelectCategory:
		return uc.categoryPrompt()
	case domain.StageSelectSubcategory:
		return uc.subcategoryPrompt(s.Draft)
	case domain.StageCustomTag:
		return customTagPrompt(s.Draft), [][]domain.Button{cancelRow()}
	case domain.StageProductName:
		return "✍🏻 Please enter the name of your product (keep it clear).", [][]domain.Button{cancelRow()}
	case domain.StageProductDescription:
		return "✍️ Description: tell buyers more about your product (what makes it special?).", [][]domain.Button{cancelRow()}
	case domain.StageProductPrice:
		return "💵 Price: enter the price of your product.", [][]domain.Button{cancelRow()}
	case domain.StageProductImage:
		return "Please send an image file.\n\nNote: The image width should be greater than or equal to its height for proper display.", [][]domain.Button{cancelRow()}
	case domain.StageSchedulePostDecision:
		return "What would you like to do with this product?", decisionKeyboard()
	case domain.StageSchedulePostTime:
		return schedulePrompt(), [][]domain.Button{cancelRow()}
	case domain.StageContactMessage:
		return "Please enter your message below.", [][]domain.Button{cancelRow()}
	}
	return "Please select an option from the menu.", mainMenuKeyboard()
}

func (uc *ConversationUsecase) confirmPrompt(s *domain.Session) (string, [][]domain.Button) {
	reg := s.Registration
	text := fmt.Sprintf("Please confirm your information:\n\nName: %s\nPhone: %s\nAddress: %s\n\nIs this correct?", reg.Name, reg.Phone, reg.Address)
	return text, [][]domain.Button{confirmRow()}
}

// Keyboards

func mainMenuKeyboard() [][]domain.Button {
	return [][]domain.Button{
		{
			domain.CommandButton("📦 My Products", domain.NewCommand(domain.CmdMyProducts)),
			domain.CommandButton("👤 My Account", domain.NewCommand(domain.CmdMyAccount)),
		},
		{
			domain.CommandButton("⭐ Preferences", domain.NewCommand(domain.CmdPreferences)),
			domain.CommandButton("📅 Schedule Post", domain.NewCommand(domain.CmdSchedulePost)),
		},
		{
			domain.CommandButton("📥 Contact Us", domain.NewCommand(domain.CmdContactUs)),
			domain.CommandButton("🔍 Explore Products", domain.NewCommand(domain.CmdExplore)),
		},
		{
			domain.CommandButton("➕ Add Product", domain.NewCommand(domain.CmdAddProduct)),
			domain.CommandButton("❓ Help", domain.NewCommand(domain.CmdHelp)),
		},
	}
}

func cancelRow() []domain.Button {
	return []domain.Button{domain.CommandButton("❌ Cancel", domain.NewCommand(domain.CmdCancel))}
}

func backRow() []domain.Button {
	return []domain.Button{domain.CommandButton("🔙 Back to Main Menu", domain.NewCommand(domain.CmdBackToMain))}
}

func sharePhoneRow() []domain.Button {
	return []domain.Button{domain.CommandButton("📱 Share My Phone Number", domain.NewCommand(domain.CmdSharePhone))}
}

func confirmRow() []domain.Button {
	return []domain.Button{
		domain.CommandButton("✅ Confirm", domain.NewCommand(domain.CmdConfirmRegistration)),
		domain.CommandButton("🔄 Start Over", domain.NewCommand(domain.CmdRestartRegistration)),
	}
}

func decisionKeyboard() [][]domain.Button {
	return [][]domain.Button{
		{domain.CommandButton("📢 Post Now", domain.NewCommand(domain.CmdPostNow))},
		{domain.CommandButton("⏰ Schedule for Later", domain.NewCommand(domain.CmdScheduleLater))},
		{domain.CommandButton("💾 Save Only", domain.NewCommand(domain.CmdSaveOnly))},
		cancelRow(),
	}
}

func formatInterval(d time.Duration) string {
	if d <= 0 {
		return "interval"
	}
	if d%time.Hour == 0 {
		hours := int(d / time.Hour)
		if hours == 1 {
			return "hour"
		}
		return fmt.Sprintf("%d hours", hours)
	}
	return d.String()
}
