package auth

import "github.com/rs/xid"

// NewID returns a fresh user id.
//
// xid ids are 20 characters, globally unique without coordination (time +
// machine + pid + counter) and sort by creation time. They are not checked
// against existing ids before insertion.
func NewID() string {
	return xid.New().String()
}
