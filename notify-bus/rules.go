package notifybus

import "slices"

// Rule is a declarative predicate over (event type, source). Empty lists match
// anything. Global events are also replicated to peer regions.
type Rule struct {
	Name       string
	EventTypes []string
	Sources    []string
	Global     bool
}

func (r Rule) Matches(e Event) bool {
	if len(r.EventTypes) > 0 && !slices.Contains(r.EventTypes, e.EventType) {
		return false
	}
	if len(r.Sources) > 0 && !slices.Contains(r.Sources, e.Source) {
		return false
	}
	return true
}

// DefaultRules is the subscription table loaded at startup. Adding a new
// notification trigger is a new row here, not dispatcher code.
var DefaultRules = []Rule{
	{
		Name:       "PostNotifications",
		EventTypes: []string{EventPostAdded},
		Sources:    []string{SourcePosts},
		Global:     true,
	},
	{
		Name:       "CommentNotifications",
		EventTypes: []string{EventCommentAdded, EventSubCommentAdded},
		Sources:    []string{SourceComments},
		Global:     true,
	},
	{
		Name:       "LikeNotifications",
		EventTypes: []string{EventPostLike, EventCommentLike},
		Sources:    []string{SourceLikes},
		Global:     true,
	},
}

// Match is the outcome of evaluating every rule against one event.
type Match struct {
	Rules     []string
	Local     bool
	Replicate bool
}

// Evaluate runs every rule. An event matching several rules is still only
// dispatched once, and replicated once if any matching rule is global.
func Evaluate(rules []Rule, e Event) Match {
	var m Match
	for _, rule := range rules {
		if !rule.Matches(e) {
			continue
		}
		m.Rules = append(m.Rules, rule.Name)
		m.Local = true
		m.Replicate = m.Replicate || rule.Global
	}
	return m
}
