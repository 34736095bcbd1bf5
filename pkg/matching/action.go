package matching

import (
	"encoding/json"
	"fmt"
)

// SuggestedAction is the verdict of a match. The zero value is not a valid
// action; only the three package values exist.
type SuggestedAction struct {
	name string
}

var (
	ActionCreateNew    = SuggestedAction{"CREATE_NEW"}
	ActionLinkExisting = SuggestedAction{"LINK_EXISTING"}
	ActionReview       = SuggestedAction{"REVIEW"}
)

func (a SuggestedAction) String() string {
	return a.name
}

func (a SuggestedAction) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.name)
}

func (a *SuggestedAction) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseAction(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

func ParseAction(s string) (SuggestedAction, error) {
	for _, a := range []SuggestedAction{ActionCreateNew, ActionLinkExisting, ActionReview} {
		if a.name == s {
			return a, nil
		}
	}
	return SuggestedAction{}, fmt.Errorf("unknown suggested action %q", s)
}

// ActionVisitor has one branch per action.
type ActionVisitor[T any] struct {
	CreateNew    func() (T, error)
	LinkExisting func() (T, error)
	Review       func() (T, error)
}

// Visit dispatches a to its branch. A nil branch or an unknown action is an
// error, so callers handle every verdict.
func Visit[T any](a SuggestedAction, v ActionVisitor[T]) (T, error) {
	var zero T
	var branch func() (T, error)
	switch a {
	case ActionCreateNew:
		branch = v.CreateNew
	case ActionLinkExisting:
		branch = v.LinkExisting
	case ActionReview:
		branch = v.Review
	default:
		return zero, fmt.Errorf("unknown suggested action %q", a.name)
	}
	if branch == nil {
		return zero, fmt.Errorf("no handler for suggested action %s", a.name)
	}
	return branch()
}
