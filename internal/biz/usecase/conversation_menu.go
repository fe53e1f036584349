package usecase

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/DevRickLin/feishu-market-bot/internal/biz/domain"
)

// mainMenu handles the commands reachable from the main menu
func (uc *ConversationUsecase) mainMenu(t *turn, ev domain.Event) {
	if !t.profile.IsRegistered() {
		t.s.ToMainMenu()
		t.s.Registration = domain.Registration{}
		t.s.Stage = domain.StageRegisterName
		t.reply("Before you can use the bot, please complete a quick registration.\n\nWhat is your full name?")
		return
	}
	if ev.Kind != domain.EventButton {
		uc.reprompt(t)
		return
	}

	cmd := ev.Command
	switch cmd.Kind {
	case domain.CmdMyProducts:
		uc.myProducts(t)
	case domain.CmdListMyProducts:
		uc.listMyProducts(t)
	case domain.CmdMyAccount:
		uc.myAccount(t)
	case domain.CmdPreferences:
		uc.preferences(t)
	case domain.CmdToggleAutoPost, domain.CmdToggleNotifications, domain.CmdToggleTheme:
		uc.togglePreference(t, cmd.Kind)
	case domain.CmdSchedulePost:
		uc.scheduleMenu(t)
	case domain.CmdScheduleListing:
		uc.scheduleListing(t, cmd.Arg)
	case domain.CmdContactUs:
		t.s.Stage = domain.StageContactMessage
		t.reply(fmt.Sprintf("📥 **Contact Us**\n\nPlease enter your message below. It will be sent directly to %s.", uc.adminName()), cancelRow())
	case domain.CmdExplore:
		uc.explore(t, 0)
	case domain.CmdPage:
		page, err := cmd.Page()
		if err != nil {
			uc.reprompt(t)
			return
		}
		uc.explore(t, page)
	case domain.CmdAddProduct:
		uc.startListing(t)
	case domain.CmdBackToMain:
		t.reply("Returning to main menu.", mainMenuKeyboard()...)
	case domain.CmdPostListing:
		uc.postListing(t, cmd.Arg)
	case domain.CmdDeleteListing:
		uc.confirmDelete(t, cmd.Arg)
	case domain.CmdConfirmDelete:
		uc.deleteListing(t, cmd.Arg)
	case domain.CmdListingDetails:
		uc.showDetails(t, cmd.Arg)
	default:
		uc.reprompt(t)
	}
}

func (uc *ConversationUsecase) myProducts(t *turn) {
	listings, err := uc.listingUC.ListByOwner(t.ctx, t.userID())
	if err != nil {
		uc.fail(t, err)
		return
	}
	add := domain.CommandButton("➕ Add Product", domain.NewCommand(domain.CmdAddProduct))
	if len(listings) == 0 {
		t.reply("You don't have any products yet. Would you like to add one?", []domain.Button{add}, backRow())
		return
	}
	list := domain.CommandButton("📋 List My Products", domain.NewCommand(domain.CmdListMyProducts))
	t.reply(fmt.Sprintf("You have %d products. What would you like to do?", len(listings)), []domain.Button{add, list}, backRow())
}

func (uc *ConversationUsecase) listMyProducts(t *turn) {
	listings, err := uc.listingUC.ListByOwner(t.ctx, t.userID())
	if err != nil {
		uc.fail(t, err)
		return
	}
	if len(listings) == 0 {
		t.reply("You don't have any products yet.", mainMenuKeyboard()...)
		return
	}

	t.reply(fmt.Sprintf("You have %d products:", len(listings)))
	for i, l := range listings {
		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("Product #%d\nName: %s\n", i+1, l.Name))
		if line := l.CategoryLine(); line != "" {
			sb.WriteString(line + "\n")
		}
		sb.WriteString(fmt.Sprintf("Price: %s %s\n", l.Price, uc.cfg.Catalog.Currency))
		sb.WriteString(fmt.Sprintf("Added: %s\n", uc.formatTime(l.CreatedAt)))
		sb.WriteString("Status: " + uc.status(l))

		var rows [][]domain.Button
		if !l.Posted {
			rows = append(rows, []domain.Button{domain.CommandButton("📢 Post Now", domain.CommandWithArg(domain.CmdPostListing, l.ID))})
		}
		rows = append(rows, []domain.Button{domain.CommandButton("🗑️ Delete", domain.CommandWithArg(domain.CmdDeleteListing, l.ID))})
		rows = append(rows, uc.viewPostRow(l.PublishedMessageRef)...)

		t.add(domain.Effect{Kind: domain.EffectListing, Text: sb.String(), Buttons: rows, Listing: l})
	}
}

func (uc *ConversationUsecase) myAccount(t *turn) {
	stats, err := uc.listingUC.OwnerStats(t.ctx, t.userID())
	if err != nil {
		uc.fail(t, err)
		return
	}
	prefs, err := uc.preferenceRepo.Get(t.ctx, t.userID())
	if err != nil {
		uc.fail(t, err)
		return
	}

	p := t.profile
	var sb strings.Builder
	sb.WriteString("👤 **Account Information**\n\n")
	sb.WriteString(fmt.Sprintf("Name: %s\nPhone: %s\nAddress: %s\nUser ID: %s\n\n", p.Name, p.Phone, p.Address, p.UserID))
	sb.WriteString("**Your Activity:**\n")
	sb.WriteString(fmt.Sprintf("Total Products: %d\nPosted Products: %d\nScheduled Products: %d\n\n", stats.Total, stats.Posted, stats.Scheduled))
	sb.WriteString("**Preferences:**\n")
	sb.WriteString(fmt.Sprintf("Auto-post: %s\n", enabledText(prefs.AutoPost)))
	sb.WriteString(fmt.Sprintf("Notifications: %s\n", enabledText(prefs.Notifications)))
	sb.WriteString(fmt.Sprintf("Language: %s\n", prefs.Language))
	sb.WriteString(fmt.Sprintf("Theme: %s", capitalize(prefs.Theme)))

	t.reply(sb.String(),
		[]domain.Button{domain.CommandButton("⭐ Preferences", domain.NewCommand(domain.CmdPreferences))},
		backRow(),
	)
}

func (uc *ConversationUsecase) preferences(t *turn) {
	prefs, err := uc.preferenceRepo.Get(t.ctx, t.userID())
	if err != nil {
		uc.fail(t, err)
		return
	}
	uc.renderPreferences(t, prefs)
}

func (uc *ConversationUsecase) renderPreferences(t *turn, prefs *domain.Preferences) {
	t.reply("⭐ **Your Preferences**\n\nTap a setting to change it:",
		[]domain.Button{domain.CommandButton("Auto-post: "+onOff(prefs.AutoPost), domain.NewCommand(domain.CmdToggleAutoPost))},
		[]domain.Button{domain.CommandButton("Notifications: "+onOff(prefs.Notifications), domain.NewCommand(domain.CmdToggleNotifications))},
		[]domain.Button{domain.CommandButton("Theme: "+capitalize(prefs.Theme), domain.NewCommand(domain.CmdToggleTheme))},
		backRow(),
	)
}

func (uc *ConversationUsecase) togglePreference(t *turn, kind domain.CommandKind) {
	prefs, err := uc.preferenceRepo.Get(t.ctx, t.userID())
	if err != nil {
		uc.fail(t, err)
		return
	}
	switch kind {
	case domain.CmdToggleAutoPost:
		prefs.AutoPost = !prefs.AutoPost
	case domain.CmdToggleNotifications:
		prefs.Notifications = !prefs.Notifications
	case domain.CmdToggleTheme:
		prefs.ToggleTheme()
	}
	if err := uc.preferenceRepo.Save(t.ctx, prefs); err != nil {
		uc.log.Error().Err(err).Str("user_id", t.userID()).Msg("failed to save preferences")
		t.reply("❌ Could not update your preferences. Please try again.", mainMenuKeyboard()...)
		return
	}
	uc.renderPreferences(t, prefs)
}

func (uc *ConversationUsecase) scheduleMenu(t *turn) {
	listings, err := uc.listingUC.ListByOwner(t.ctx, t.userID())
	if err != nil {
		uc.fail(t, err)
		return
	}

	var rows [][]domain.Button
	for _, l := range listings {
		if l.Posted {
			continue
		}
		label := l.Name
		if l.ScheduledAt != nil {
			label += " ⏰ " + uc.formatTime(*l.ScheduledAt)
		}
		rows = append(rows, []domain.Button{domain.CommandButton(label, domain.CommandWithArg(domain.CmdScheduleListing, l.ID))})
	}
	if len(rows) == 0 {
		t.reply("You don't have any products available for scheduling. Would you like to add one?",
			[]domain.Button{domain.CommandButton("➕ Add Product", domain.NewCommand(domain.CmdAddProduct))},
			backRow(),
		)
		return
	}
	rows = append(rows, backRow())
	t.reply("Select a product to schedule:", rows...)
}

func (uc *ConversationUsecase) scheduleListing(t *turn, id string) {
	l, err := uc.listingUC.GetOwned(t.ctx, t.userID(), id)
	if err != nil {
		uc.listingError(t, err)
		return
	}
	if l.Posted {
		t.reply("This product has already been posted.", mainMenuKeyboard()...)
		return
	}
	t.s.RescheduleListingID = l.ID
	t.s.Stage = domain.StageSchedulePostTime
	t.reply(fmt.Sprintf("Scheduling '%s'.\n\n%s", l.Name, schedulePrompt()), cancelRow())
}

func (uc *ConversationUsecase) explore(t *turn, page int) {
	p, err := uc.listingUC.Explore(t.ctx, page, uc.cfg.Catalog.PageSize)
	if err != nil {
		uc.fail(t, err)
		return
	}
	if p.Total == 0 {
		t.reply("No products available to explore yet.", mainMenuKeyboard()...)
		return
	}

	for _, l := range p.Listings {
		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("📦 **%s**\n\n", l.Name))
		if line := l.CategoryLine(); line != "" {
			sb.WriteString(line + "\n")
		}
		sb.WriteString(fmt.Sprintf("💰 Price: %s %s\n", l.Price, uc.cfg.Catalog.Currency))
		sb.WriteString("Status: " + uc.status(l))

		rows := [][]domain.Button{
			{domain.CommandButton("📞 Contact Seller", domain.CommandWithArg(domain.CmdContactSeller, l.ID))},
			{domain.CommandButton("📋 Product Details", domain.CommandWithArg(domain.CmdListingDetails, l.ID))},
		}
		rows = append(rows, uc.viewPostRow(l.PublishedMessageRef)...)
		t.add(domain.Effect{Kind: domain.EffectListing, Text: sb.String(), Buttons: rows, Listing: l})
	}

	var nav []domain.Button
	if p.HasPrev() {
		nav = append(nav, domain.CommandButton("⬅️ Previous", domain.PageCommand(p.Page-1)))
	}
	if p.HasNext() {
		nav = append(nav, domain.CommandButton("➡️ Next", domain.PageCommand(p.Page+1)))
	}
	rows := [][]domain.Button{}
	if len(nav) > 0 {
		rows = append(rows, nav)
	}
	rows = append(rows, backRow())
	t.reply(fmt.Sprintf("Showing products %d-%d of %d", p.Start+1, p.End, p.Total), rows...)
}

func (uc *ConversationUsecase) postListing(t *turn, id string) {
	l, err := uc.listingUC.GetOwned(t.ctx, t.userID(), id)
	if err != nil {
		uc.listingError(t, err)
		return
	}
	res, err := uc.publisher.Publish(t.ctx, l.ID)
	switch {
	case errors.Is(err, domain.ErrListingNotFound):
		uc.notFound(t, "Product not found.")
	case err != nil || !res.Success:
		t.reply(fmt.Sprintf("❌ Error posting product: %s", publishErrorText(res, err)), mainMenuKeyboard()...)
	case res.AlreadyPosted:
		t.reply("This product has already been posted.", uc.viewPostRow(res.MessageRef)...)
	default:
		if l.ScheduledAt != nil {
			uc.scheduleUC.Unschedule(l.ID)
		}
		t.reply(fmt.Sprintf("✅ Product '%s' has been posted to the channel!", l.Name), uc.viewPostRow(res.MessageRef)...)
	}
}

func (uc *ConversationUsecase) confirmDelete(t *turn, id string) {
	l, err := uc.listingUC.GetOwned(t.ctx, t.userID(), id)
	if err != nil {
		uc.listingError(t, err)
		return
	}
	t.reply(fmt.Sprintf("Are you sure you want to delete the product '%s'?\n\nThis action cannot be undone.", l.Name),
		[]domain.Button{domain.CommandButton("✅ Yes, Delete", domain.CommandWithArg(domain.CmdConfirmDelete, l.ID))},
		[]domain.Button{domain.CommandButton("❌ No, Keep It", domain.NewCommand(domain.CmdBackToMain))},
	)
}

func (uc *ConversationUsecase) deleteListing(t *turn, id string) {
	l, err := uc.listingUC.Delete(t.ctx, t.userID(), id)
	switch {
	case errors.Is(err, domain.ErrListingNotFound):
		uc.notFound(t, "Product not found or already deleted.")
	case err != nil:
		uc.listingError(t, err)
	default:
		t.reply(fmt.Sprintf("✅ Product '%s' has been deleted successfully.", l.Name), mainMenuKeyboard()...)
	}
}

func (uc *ConversationUsecase) showDetails(t *turn, id string) {
	l, err := uc.listingUC.Get(t.ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrListingNotFound) {
			uc.notFound(t, "Product information not found.")
			return
		}
		uc.fail(t, err)
		return
	}

	var sb strings.Builder
	sb.WriteString("📋 **Product Details**\n\n")
	sb.WriteString(fmt.Sprintf("Name: %s\n", l.Name))
	if line := l.CategoryLine(); line != "" {
		sb.WriteString(fmt.Sprintf("Category: %s\n", line))
	}
	sb.WriteString(fmt.Sprintf("Description: %s\n", l.Description))
	sb.WriteString(fmt.Sprintf("Price: %s %s\n", l.Price, uc.cfg.Catalog.Currency))
	sb.WriteString(fmt.Sprintf("Added: %s\n", uc.formatTime(l.CreatedAt)))
	sb.WriteString("Status: " + uc.status(l))

	var rows [][]domain.Button
	if l.OwnerID != t.userID() {
		rows = append(rows, []domain.Button{domain.CommandButton("📞 Contact Seller", domain.CommandWithArg(domain.CmdContactSeller, l.ID))})
	}
	rows = append(rows, uc.viewPostRow(l.PublishedMessageRef)...)
	rows = append(rows, backRow())
	t.add(domain.Effect{Kind: domain.EffectListing, Text: sb.String(), Buttons: rows, Listing: l})
}

// showSellerContact shows the owner details of a listing and tells the owner
func (uc *ConversationUsecase) showSellerContact(t *turn, id string) {
	l, err := uc.listingUC.Get(t.ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrListingNotFound) {
			uc.notFound(t, "Product information not found.")
			return
		}
		uc.fail(t, err)
		return
	}

	text := fmt.Sprintf(
		"📞 **Seller Contact Information**\n\nProduct: **%s**\n\nSeller Name: %s\nPhone: %s\nAddress: %s\n\nYou can contact the seller directly about this product.",
		l.Name, orNotProvided(l.OwnerName), orNotProvided(l.OwnerPhone), orNotProvided(l.OwnerAddress),
	)
	rows := [][]domain.Button{
		{domain.CommandButton("📋 Product Details", domain.CommandWithArg(domain.CmdListingDetails, l.ID))},
	}
	rows = append(rows, uc.viewPostRow(l.PublishedMessageRef)...)
	rows = append(rows, backRow())
	t.add(domain.Effect{Kind: domain.EffectSellerContact, Text: text, Buttons: rows, Listing: l})

	if l.OwnerID != t.userID() {
		uc.notifySeller(t, l)
	}
}

func (uc *ConversationUsecase) notifySeller(t *turn, l *domain.Listing) {
	prefs, err := uc.preferenceRepo.Get(t.ctx, l.OwnerID)
	if err != nil {
		uc.log.Warn().Err(err).Str("user_id", l.OwnerID).Msg("failed to load seller preferences")
		return
	}
	if !prefs.Notifications {
		return
	}
	buyer := "Someone"
	if t.profile != nil && t.profile.Name != "" {
		buyer = t.profile.Name
	}
	text := fmt.Sprintf("🔔 %s viewed your contact details for '%s'.", buyer, l.Name)
	if err := uc.messageRepo.NotifyUser(t.ctx, l.OwnerID, text); err != nil {
		uc.log.Warn().Err(err).Str("user_id", l.OwnerID).Str("listing_id", l.ID).Msg("failed to notify seller")
	}
}

// viewPostRow links to the channel post when a link can be built
func (uc *ConversationUsecase) viewPostRow(messageRef string) [][]domain.Button {
	if uc.cfg.PostLinkTemplate == "" || messageRef == "" {
		return nil
	}
	return [][]domain.Button{{domain.URLButton("👁️ View Post", fmt.Sprintf(uc.cfg.PostLinkTemplate, messageRef))}}
}

func (uc *ConversationUsecase) status(l *domain.Listing) string {
	switch {
	case l.Posted:
		return "✅ Posted"
	case l.ScheduledAt != nil:
		return "⏰ Scheduled for " + uc.formatTime(*l.ScheduledAt)
	}
	return "⏳ Not posted yet"
}

func (uc *ConversationUsecase) formatTime(t time.Time) string {
	return t.In(uc.cfg.Location).Format(domain.ScheduleLayout)
}

func enabledText(on bool) string {
	if on {
		return "✅ Enabled"
	}
	return "❌ Disabled"
}

func onOff(on bool) string {
	if on {
		return "✅ ON"
	}
	return "❌ OFF"
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func orNotProvided(s string) string {
	if s == "" {
		return "Not provided"
	}
	return s
}
