// Package accesscontroller decides who may append to a log. The log core
// treats the controller as an opaque predicate capability; policy lives
// entirely behind the interface.
package accesscontroller

import (
	"github.com/i5heu/ouroboros-log/pkg/entry"
	"github.com/i5heu/ouroboros-log/pkg/identity"
)

// Interface is consulted before an entry enters a log, both on local
// append and on join.
type Interface interface {
	// CanAppend returns nil when the entry's author may write to the log.
	CanAppend(e *entry.Entry, provider identity.Provider) error
}

// Default permits every author.
type Default struct{}

func (Default) CanAppend(*entry.Entry, identity.Provider) error {
	return nil
}

var _ Interface = Default{}
