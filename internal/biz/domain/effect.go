package domain

// EffectKind identifies what the transport should render
type EffectKind int

const (
	// EffectReply is a text message with optional buttons
	EffectReply EffectKind = iota
	// EffectReprompt repeats the current question after invalid input
	EffectReprompt
	// EffectListing is a listing card with its image
	EffectListing
	// EffectSellerContact shows the owner details of a listing
	EffectSellerContact
)

// Button is a single card button. Either Command or URL is set.
type Button struct {
	Label   string
	Command *Command
	URL     string
}

func CommandButton(label string, cmd Command) Button {
	return Button{Label: label, Command: &cmd}
}

func URLButton(label, url string) Button {
	return Button{Label: label, URL: url}
}

// Effect is one output directive of a conversation turn
type Effect struct {
	Kind    EffectKind
	Text    string
	Buttons [][]Button
	Listing *Listing
}

func Reply(text string, buttons ...[]Button) Effect {
	return Effect{Kind: EffectReply, Text: text, Buttons: buttons}
}

func Reprompt(text string, buttons ...[]Button) Effect {
	return Effect{Kind: EffectReprompt, Text: text, Buttons: buttons}
}
