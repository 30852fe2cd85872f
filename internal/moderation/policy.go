package moderation

import (
	"strings"

	"marginalia/api/internal/store"
)

// Kind classifies a comment by who wrote it.
type Kind int

const (
	Human Kind = iota
	Automated
)

func (k Kind) String() string {
	if k == Automated {
		return "automated"
	}
	return "human"
}

// State is derived from kind, position and the moderation record. It is
// never stored.
type State string

const (
	StateActive      State = "active"
	StateSoftDeleted State = "soft_deleted"
)

const DefaultAutomatedTag = "LLM"

// Policy decides whether an author tag marks an automated participant.
// Matching trims surrounding whitespace and ignores case.
type Policy struct {
	tag string
}

func NewPolicy(tag string) Policy {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		tag = DefaultAutomatedTag
	}
	return Policy{tag: tag}
}

// Tag is the configured automated author tag.
func (p Policy) Tag() string {
	if p.tag == "" {
		return DefaultAutomatedTag
	}
	return p.tag
}

func (p Policy) Kind(author string) Kind {
	if strings.EqualFold(strings.TrimSpace(author), p.Tag()) {
		return Automated
	}
	return Human
}

// State reports the moderation state of c given whether its record carries a
// deletion reason. Only automated replies can be soft deleted.
func (p Policy) State(c store.Comment, softDeleted bool) State {
	if softDeleted && !c.IsRoot() && p.Kind(c.Author) == Automated {
		return StateSoftDeleted
	}
	return StateActive
}

// Visible is the listing rule shared by read APIs and the export renderer.
func (p Policy) Visible(c store.Comment, softDeleted bool) bool {
	return p.State(c, softDeleted) == StateActive
}
