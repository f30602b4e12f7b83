package cmd

import (
	"log/slog"

	"github.com/leadmill/leadmill/pkg/actions"
	"github.com/leadmill/leadmill/pkg/persistence"
)

// NewRegistry builds the action registry with the default collaborators:
// logging delivery stubs plus the real unsubscribe list.
func NewRegistry(logger *slog.Logger, p persistence.Persistence) *actions.Registry {
	delivery := actions.NewLoggingCollaborators(logger)

	return actions.DefaultRegistry(actions.Collaborators{
		EmailSender:  delivery,
		SMSSender:    delivery,
		Tags:         delivery,
		Segments:     delivery,
		Fields:       delivery,
		Notifier:     delivery,
		Unsubscribes: p.UnsubscribeRepository(),
	})
}
