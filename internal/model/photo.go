package model

import "time"

// DefaultReactionKinds are the counters every new photo starts with.
// Other kinds are accepted and created on first use.
var DefaultReactionKinds = []string{"like", "love", "wow", "sad"}

// Photo is one entry of the feed.
//
// URL is either a remote link or an inline data URI
// ("data:image/png;base64,..."). Reactions, Comments and Shares are
// mutated in place by the store; everything else is fixed at upload.
type Photo struct {
	ID           string         `json:"id"`
	URL          string         `json:"url"`
	ThumbnailURL string         `json:"thumbnailUrl,omitempty"`
	Title        string         `json:"title"`
	Creator      string         `json:"creator"`
	CreatorID    string         `json:"creatorId,omitempty"`
	Reactions    map[string]int `json:"reactions"`
	Comments     []Comment      `json:"comments"`
	Shares       int            `json:"shares"`
	CreatedAt    time.Time      `json:"createdAt"`
}

// Comment is appended to a photo; insertion order is display order.
type Comment struct {
	User      string    `json:"user"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewReactions returns a counter map with every default kind at zero.
func NewReactions() map[string]int {
	r := make(map[string]int, len(DefaultReactionKinds))
	for _, kind := range DefaultReactionKinds {
		r[kind] = 0
	}
	return r
}

// Clone returns a deep copy so callers can't reach into a store's state.
func (p *Photo) Clone() *Photo {
	c := *p
	c.Reactions = CloneReactions(p.Reactions)
	c.Comments = CloneComments(p.Comments)
	return &c
}

// CloneReactions copies a reaction map. A nil map becomes an empty one so
// it always serializes as {}.
func CloneReactions(r map[string]int) map[string]int {
	out := make(map[string]int, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// CloneComments copies a comment slice. A nil slice becomes an empty one so
// it always serializes as [].
func CloneComments(c []Comment) []Comment {
	out := make([]Comment, len(c))
	copy(out, c)
	return out
}
