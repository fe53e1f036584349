package biz

import (
	"time"

	"github.com/DevRickLin/feishu-market-bot/internal/biz/repo"
	"github.com/DevRickLin/feishu-market-bot/internal/biz/usecase"
)

// Usecases contains all usecases
type Usecases struct {
	Session      *usecase.SessionUsecase
	Listing      *usecase.ListingUsecase
	Publish      *usecase.PublishUsecase
	Schedule     *usecase.ScheduleUsecase
	AutoPost     *usecase.AutoPostUsecase
	Conversation *usecase.ConversationUsecase
}

// Deps are the collaborators the usecases are built on
type Deps struct {
	Listing    repo.ListingRepo
	Profile    repo.ProfileRepo
	Preference repo.PreferenceRepo
	Session    repo.SessionRepo
	Message    repo.MessageRepo
	Channel    repo.ChannelRepo
	Vision     repo.ImageValidator
	Events     repo.EventRepo
	Scheduler  repo.Scheduler
}

// Options tunes the usecases
type Options struct {
	Engine      usecase.EngineConfig
	AutoPost    usecase.AutoPostConfig
	IdleTimeout time.Duration
}

// NewUsecases wires every usecase from its collaborators
func NewUsecases(d Deps, opts Options) *Usecases {
	currency := ""
	if opts.Engine.Catalog != nil {
		currency = opts.Engine.Catalog.Currency
	}

	publishUC := usecase.NewPublishUsecase(d.Listing, d.Channel, d.Events, currency, opts.Engine.Location)
	listingUC := usecase.NewListingUsecase(d.Listing, d.Events, d.Scheduler)
	scheduleUC := usecase.NewScheduleUsecase(d.Listing, d.Preference, d.Message, d.Events, d.Scheduler, publishUC)

	return &Usecases{
		Session:  usecase.NewSessionUsecase(d.Session, d.Profile, opts.IdleTimeout),
		Listing:  listingUC,
		Publish:  publishUC,
		Schedule: scheduleUC,
		AutoPost: usecase.NewAutoPostUsecase(d.Listing, d.Preference, publishUC, opts.AutoPost),
		Conversation: usecase.NewConversationUsecase(
			d.Profile,
			d.Preference,
			d.Message,
			d.Vision,
			listingUC,
			scheduleUC,
			publishUC,
			opts.Engine,
		),
	}
}
