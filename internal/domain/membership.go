package domain

import "context"

// MembershipChecker - внешний источник прав доступа к комнатам (CRUD-сервис).
type MembershipChecker interface {
	CanAccess(ctx context.Context, user UserID, room RoomKey) (bool, error)
}
