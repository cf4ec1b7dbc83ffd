package proximity

import (
	"github.com/geosocial/proximity/internal/model"
	"github.com/geosocial/proximity/internal/store"
)

// Service groups the per-kind searchers.
type Service struct {
	Users      *Searcher[*model.User]
	Groups     *Searcher[*model.Group]
	Activities *Searcher[*model.Activity]
}

// NewService builds one searcher per kind over st.
func NewService(st store.Store, opts Options) *Service {
	return &Service{
		Users:      NewSearcher[*model.User](model.KindUser, st.Users(), opts),
		Groups:     NewSearcher[*model.Group](model.KindGroup, st.Groups(), opts),
		Activities: NewSearcher[*model.Activity](model.KindActivity, st.Activities(), opts),
	}
}
