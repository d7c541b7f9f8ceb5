package postgres

import (
	"context"
	"fmt"

	"github.com/cwrk-planet/realtime-service/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

// MembershipRepository отвечает на вопрос «может ли пользователь видеть комнату»
// по таблицам CRUD-сервиса.
type MembershipRepository struct {
	db *pgxpool.Pool
}

func NewMembershipRepository(db *pgxpool.Pool) *MembershipRepository {
	return &MembershipRepository{db: db}
}

func (r *MembershipRepository) CanAccess(ctx context.Context, user domain.UserID, room domain.RoomKey) (bool, error) {
	var q string
	switch room.Namespace() {
	case domain.NamespaceChannel:
		q = qChannelMember
	case domain.NamespaceConversation:
		q = qConversationParticipant
	case domain.NamespaceServer:
		q = qServerMember
	case domain.NamespaceUser:
		return domain.UserID(room.ID()) == user, nil
	default:
		return false, fmt.Errorf("%w: %s", domain.ErrInvalidRoom, room)
	}

	var ok bool
	if err := r.db.QueryRow(ctx, q, room.ID(), string(user)).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

// ServerChannels - каналы сервера (для принудительного выхода при member_removed).
func (r *MembershipRepository) ServerChannels(ctx context.Context, serverID string) ([]string, error) {
	rows, err := r.db.Query(ctx, qServerChannels, serverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
