package port

import "context"

// MembershipChecker answers whether a user holds an active membership in an
// organization. Backed by the relational store owned by the CRUD services.
type MembershipChecker interface {
	IsMember(ctx context.Context, userID, organizationID int64) (bool, error)
}
