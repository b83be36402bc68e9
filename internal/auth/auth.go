// Package auth decides which wallet addresses may submit generation jobs.
package auth

import (
	"context"
	"errors"
	"strings"
)

// ErrNotWhitelisted is returned when an address may not submit jobs.
var ErrNotWhitelisted = errors.New("address is not whitelisted")

// Authorizer checks whether an address may submit generation jobs.
type Authorizer interface {
	IsWhitelisted(ctx context.Context, address string) (bool, error)
}

// AllowAll admits every address.
type AllowAll struct{}

func (AllowAll) IsWhitelisted(context.Context, string) (bool, error) { return true, nil }

// StaticList admits the addresses it was built with. Matching ignores case
// and surrounding whitespace.
type StaticList struct {
	allowed map[string]struct{}
}

// NewStaticList builds a StaticList from addresses.
func NewStaticList(addresses ...string) *StaticList {
	l := &StaticList{allowed: make(map[string]struct{}, len(addresses))}
	for _, a := range addresses {
		if a = normalize(a); a != "" {
			l.allowed[a] = struct{}{}
		}
	}
	return l
}

func (l *StaticList) IsWhitelisted(_ context.Context, address string) (bool, error) {
	_, ok := l.allowed[normalize(address)]
	return ok, nil
}

func normalize(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// Check returns ErrNotWhitelisted if a does not admit address.
func Check(ctx context.Context, a Authorizer, address string) error {
	ok, err := a.IsWhitelisted(ctx, address)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotWhitelisted
	}
	return nil
}
