package usecase

import (
	"errors"
	"fmt"
	"strings"

	"github.com/DevRickLin/feishu-market-bot/internal/biz/domain"
)

func (uc *ConversationUsecase) startListing(t *turn) {
	t.s.Draft = &domain.Draft{}
	t.s.Stage = domain.StageSelectCategory
	text, buttons := uc.categoryPrompt()
	t.reply(text, buttons...)
}

func (uc *ConversationUsecase) categoryPrompt() (string, [][]domain.Button) {
	rows := make([][]domain.Button, 0, len(uc.cfg.Catalog.Categories)+2)
	for _, c := range uc.cfg.Catalog.Categories {
		rows = append(rows, []domain.Button{
			domain.CommandButton(c.Tag, domain.CommandWithArg(domain.CmdCategory, c.Tag)),
		})
	}
	rows = append(rows,
		[]domain.Button{domain.CommandButton("➕ Custom Category", domain.NewCommand(domain.CmdCustomCategory))},
		cancelRow(),
	)
	return "📂 Main Category: choose one (for example '#Electronics').", rows
}

func (uc *ConversationUsecase) subcategoryPrompt(d *domain.Draft) (string, [][]domain.Button) {
	category := ""
	if d != nil {
		category = d.Category
	}

	var rows [][]domain.Button
	cat, known := uc.cfg.Catalog.Find(category)
	if known {
		for _, sub := range cat.Subcategories {
			rows = append(rows, []domain.Button{
				domain.CommandButton(sub, domain.CommandWithArg(domain.CmdSubcategory, sub)),
			})
		}
	}
	rows = append(rows, []domain.Button{domain.CommandButton("➕ Custom Subcategory", domain.NewCommand(domain.CmdCustomSubcategory))})
	if known {
		rows = append(rows, []domain.Button{domain.CommandButton("🔙 Back to Categories", domain.NewCommand(domain.CmdBackToCategories))})
	} else {
		rows = append(rows, []domain.Button{domain.CommandButton("Skip Subcategory", domain.NewCommand(domain.CmdSkipSubcategory))})
	}
	rows = append(rows, cancelRow())

	if !known {
		return fmt.Sprintf("Custom category set: %s\n\nNow, select or create a subcategory:", category), rows
	}
	return fmt.Sprintf("Selected category: %s\n\n📂 Sub Category: choose one (for example '#Accessories').", category), rows
}

func customTagPrompt(d *domain.Draft) string {
	if d != nil && d.TagTarget == domain.TagTargetSubcategory {
		return "Please enter a custom subcategory for your product.\nMake sure it starts with # (e.g., #Premium, #Budget):"
	}
	return "Please enter a custom category for your product.\nMake sure it starts with # (e.g., #Fashion, #Technology):"
}

func (uc *ConversationUsecase) selectCategory(t *turn, ev domain.Event) {
	switch {
	case ev.IsCommand(domain.CmdCategory):
		if _, ok := uc.cfg.Catalog.Find(ev.Command.Arg); !ok {
			uc.reprompt(t)
			return
		}
		t.s.Draft.Category = ev.Command.Arg
		t.s.Draft.Subcategory = ""
		t.s.Stage = domain.StageSelectSubcategory
		text, buttons := uc.subcategoryPrompt(t.s.Draft)
		t.reply(text, buttons...)
	case ev.IsCommand(domain.CmdCustomCategory):
		t.s.Draft.TagTarget = domain.TagTargetCategory
		t.s.Stage = domain.StageCustomTag
		t.reply(customTagPrompt(t.s.Draft), cancelRow())
	default:
		uc.reprompt(t)
	}
}

func (uc *ConversationUsecase) selectSubcategory(t *turn, ev domain.Event) {
	switch {
	case ev.IsCommand(domain.CmdSubcategory):
		if !uc.cfg.Catalog.HasSubcategory(t.s.Draft.Category, ev.Command.Arg) {
			uc.reprompt(t)
			return
		}
		t.s.Draft.Subcategory = ev.Command.Arg
		t.s.Stage = domain.StageProductName
		t.reply(
			fmt.Sprintf("Selected category: %s\nSelected subcategory: %s\n\n✍🏻 Please enter the name of your product (keep it clear).", t.s.Draft.Category, t.s.Draft.Subcategory),
			cancelRow(),
		)
	case ev.IsCommand(domain.CmdCustomSubcategory):
		t.s.Draft.TagTarget = domain.TagTargetSubcategory
		t.s.Stage = domain.StageCustomTag
		t.reply(customTagPrompt(t.s.Draft), cancelRow())
	case ev.IsCommand(domain.CmdSkipSubcategory):
		t.s.Draft.Subcategory = ""
		t.s.Stage = domain.StageProductName
		t.reply(
			fmt.Sprintf("Selected category: %s\nSubcategory: Skipped\n\nNow, what's the product name?", t.s.Draft.Category),
			cancelRow(),
		)
	case ev.IsCommand(domain.CmdBackToCategories):
		t.s.Draft.Category = ""
		t.s.Draft.Subcategory = ""
		t.s.Stage = domain.StageSelectCategory
		text, buttons := uc.categoryPrompt()
		t.reply(text, buttons...)
	default:
		uc.reprompt(t)
	}
}

func (uc *ConversationUsecase) customTag(t *turn, ev domain.Event) {
	if ev.Kind != domain.EventText {
		uc.reprompt(t)
		return
	}
	tag, err := domain.NormalizeTag(ev.Text)
	if err != nil {
		uc.reprompt(t)
		return
	}

	if t.s.Draft.TagTarget == domain.TagTargetSubcategory {
		t.s.Draft.Subcategory = tag
		t.s.Stage = domain.StageProductName
		t.reply(fmt.Sprintf("Custom subcategory set: %s\n\n✍🏻 Please enter the name of your product (keep it clear).", tag), cancelRow())
		return
	}

	t.s.Draft.Category = tag
	t.s.Draft.Subcategory = ""
	t.s.Stage = domain.StageSelectSubcategory
	text, buttons := uc.subcategoryPrompt(t.s.Draft)
	t.reply(text, buttons...)
}

func (uc *ConversationUsecase) productName(t *turn, ev domain.Event) {
	name := strings.TrimSpace(ev.Text)
	if ev.Kind != domain.EventText || name == "" {
		uc.reprompt(t)
		return
	}
	t.s.Draft.Name = name
	t.s.Stage = domain.StageProductDescription
	text, buttons := uc.stagePrompt(t.s)
	t.reply(text, buttons...)
}

func (uc *ConversationUsecase) productDescription(t *turn, ev domain.Event) {
	desc := strings.TrimSpace(ev.Text)
	if ev.Kind != domain.EventText || desc == "" {
		uc.reprompt(t)
		return
	}
	t.s.Draft.Description = desc
	t.s.Stage = domain.StageProductPrice
	text, buttons := uc.stagePrompt(t.s)
	t.reply(text, buttons...)
}

func (uc *ConversationUsecase) productPrice(t *turn, ev domain.Event) {
	if ev.Kind != domain.EventText {
		uc.reprompt(t)
		return
	}
	price, err := domain.ParsePrice(ev.Text)
	if err != nil {
		t.reprompt("Please enter a valid price (numbers only).", cancelRow())
		return
	}
	t.s.Draft.Price = &price
	t.s.Stage = domain.StageProductImage
	t.reply("Please send an image of the product.\n\nNote: The image width should be greater than or equal to its height for proper display.", cancelRow())
}

func (uc *ConversationUsecase) productImage(t *turn, ev domain.Event) {
	if ev.Kind != domain.EventPhoto || ev.Photo == nil {
		uc.reprompt(t)
		return
	}
	if err := t.s.Draft.ReadyForImage(); err != nil {
		uc.fail(t, err)
		return
	}

	verdict, err := uc.validator.Validate(t.ctx, *ev.Photo)
	if err != nil {
		uc.log.Error().Err(err).Str("user_id", t.userID()).Msg("image validation failed")
		verdict.OK = false
		verdict.Issue = "Error"
		verdict.Reason = "Error checking image: " + err.Error()
	}
	if !verdict.OK {
		t.reprompt(fmt.Sprintf("⚠️ %s: %s\n\nPlease send a different image that meets our requirements.", verdict.Issue, verdict.Reason), cancelRow())
		return
	}

	d := t.s.Draft
	d.ImageRef = ev.Photo.Key
	t.s.Stage = domain.StageSchedulePostDecision

	var sb strings.Builder
	sb.WriteString("✅ Product details saved!\n\n")
	sb.WriteString(fmt.Sprintf("Name: %s\n", d.Name))
	if d.Category != "" {
		sb.WriteString(fmt.Sprintf("Category: %s\n", d.Category))
	}
	if d.Subcategory != "" {
		sb.WriteString(fmt.Sprintf("Subcategory: %s\n", d.Subcategory))
	}
	sb.WriteString(fmt.Sprintf("Description: %s\n", d.Description))
	sb.WriteString(fmt.Sprintf("Price: %s %s\n\n", d.Price, uc.cfg.Catalog.Currency))
	sb.WriteString("What would you like to do with this product?")
	t.reply(sb.String(), decisionKeyboard()...)
}

func (uc *ConversationUsecase) schedulePostDecision(t *turn, ev domain.Event) {
	switch {
	case ev.IsCommand(domain.CmdPostNow):
		l, ok := uc.persistDraft(t)
		if !ok {
			return
		}
		res, err := uc.publisher.Publish(t.ctx, l.ID)
		t.s.ToMainMenu()
		if err != nil || !res.Success {
			t.reply(fmt.Sprintf("❌ Error posting product: %s", publishErrorText(res, err)))
		} else {
			t.reply(fmt.Sprintf("✅ Product '%s' has been added and posted to the channel!", l.Name), uc.viewPostRow(res.MessageRef)...)
		}
		t.reply("What would you like to do next?", mainMenuKeyboard()...)

	case ev.IsCommand(domain.CmdScheduleLater):
		if err := t.s.Draft.ReadyForDecision(); err != nil {
			uc.fail(t, err)
			return
		}
		t.s.Stage = domain.StageSchedulePostTime
		t.reply(schedulePrompt(), cancelRow())

	case ev.IsCommand(domain.CmdSaveOnly):
		l, ok := uc.persistDraft(t)
		if !ok {
			return
		}
		t.s.ToMainMenu()
		t.reply(fmt.Sprintf("✅ Product '%s' has been saved to your products.", l.Name))
		t.reply("What would you like to do next?", mainMenuKeyboard()...)

	default:
		uc.reprompt(t)
	}
}

func (uc *ConversationUsecase) schedulePostTime(t *turn, ev domain.Event) {
	if ev.Kind != domain.EventText {
		uc.reprompt(t)
		return
	}
	at, err := domain.ParseScheduleTime(ev.Text, uc.now(), uc.cfg.Location)
	switch {
	case errors.Is(err, domain.ErrScheduleInPast):
		t.reprompt("The scheduled time must be in the future. Please enter a future date and time.", cancelRow())
		return
	case err != nil:
		t.reprompt("Invalid format. Please use YYYY-MM-DD HH:MM format.\nFor example: 2025-05-15 14:30", cancelRow())
		return
	}

	if id := t.s.RescheduleListingID; id != "" {
		l, err := uc.scheduleUC.Schedule(t.ctx, id, at)
		if err != nil {
			uc.scheduleError(t, err, "")
			return
		}
		t.s.ToMainMenu()
		t.reply(uc.scheduledText(l), mainMenuKeyboard()...)
		return
	}

	l, ok := uc.persistDraft(t)
	if !ok {
		return
	}
	scheduled, err := uc.scheduleUC.Schedule(t.ctx, l.ID, at)
	if err != nil {
		uc.scheduleError(t, err, "\nIt has been saved to your products.")
		return
	}
	t.s.ToMainMenu()
	t.reply(uc.scheduledText(scheduled), mainMenuKeyboard()...)
}

func (uc *ConversationUsecase) scheduledText(l *domain.Listing) string {
	return fmt.Sprintf("✅ Product '%s' has been scheduled for posting on:\n%s", l.Name, uc.formatTime(*l.ScheduledAt))
}

func (uc *ConversationUsecase) scheduleError(t *turn, err error, suffix string) {
	switch {
	case errors.Is(err, domain.ErrListingNotFound):
		uc.notFound(t, "Product not found.")
	case errors.Is(err, domain.ErrAlreadyPosted):
		t.s.ToMainMenu()
		t.reply("This product has already been posted.", mainMenuKeyboard()...)
	default:
		uc.log.Error().Err(err).Str("user_id", t.userID()).Msg("failed to schedule listing")
		t.s.ToMainMenu()
		t.reply(fmt.Sprintf("❌ Could not schedule product: %v%s", err, suffix), mainMenuKeyboard()...)
	}
}

// persistDraft turns the session draft into a stored listing.
// On failure it reports to the user and returns to the main menu.
func (uc *ConversationUsecase) persistDraft(t *turn) (*domain.Listing, bool) {
	if !t.profile.IsRegistered() {
		uc.fail(t, errors.New("listing owner is not registered"))
		return nil, false
	}
	l, err := uc.listingUC.Create(t.ctx, t.profile, t.s.Draft)
	if errors.Is(err, domain.ErrIncompleteDraft) {
		uc.fail(t, err)
		return nil, false
	}
	if err != nil {
		uc.log.Error().Err(err).Str("user_id", t.userID()).Msg("failed to save listing")
		t.s.ToMainMenu()
		t.reply("❌ Could not save your product. Please try again.", mainMenuKeyboard()...)
		return nil, false
	}
	return l, true
}

func schedulePrompt() string {
	return "When would you like to schedule this post? Please enter date and time in format:\nYYYY-MM-DD HH:MM\n\nFor example: 2025-05-15 14:30"
}

func publishErrorText(res *PublishResult, err error) string {
	if res != nil && res.Error != "" {
		return res.Error
	}
	if err != nil {
		var pubErr *domain.PublishError
		if errors.As(err, &pubErr) {
			return pubErr.Err.Error()
		}
		return err.Error()
	}
	return "unknown error"
}
