package engine

import (
	"context"

	"github.com/becomeliminal/travel-memory/core"
)

// Stats summarizes what the engine remembers about one user.
type Stats struct {
	UserID                string             `json:"user_id"`
	ShortTermTurns        int                `json:"short_term_turns"`
	LongTermRecords       int                `json:"long_term_records"`
	PreferenceCategories  int                `json:"preference_categories"`
	DestinationsDiscussed int                `json:"destinations_discussed"`
	Conversations         int                `json:"conversations"`
	Preferences           core.PreferenceSet `json:"preferences"`
}

// Stats reports userID's memory. An unknown user reads as all zeros.
func (e *Engine) Stats(ctx context.Context, userID string) Stats {
	prefs := e.prefs.Get(ctx, userID)
	return Stats{
		UserID:                userID,
		ShortTermTurns:        e.shortTerm.Len(userID),
		LongTermRecords:       e.longTerm.Count(ctx, userID),
		PreferenceCategories:  prefs.CategoryCount(),
		DestinationsDiscussed: len(prefs[core.CategoryDestinations]),
		Conversations:         len(e.Conversations(userID)),
		Preferences:           prefs,
	}
}

// Overview is the service-wide view.
type Overview struct {
	ActiveUsers int     `json:"active_users"`
	Users       []Stats `json:"users"`
}

// Overview reports stats for every active user.
func (e *Engine) Overview(ctx context.Context) Overview {
	users := e.ActiveUsers()
	out := Overview{ActiveUsers: len(users), Users: make([]Stats, 0, len(users))}
	for _, id := range users {
		out.Users = append(out.Users, e.Stats(ctx, id))
	}
	return out
}
