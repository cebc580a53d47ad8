package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/erazemk/kmetija/internal/model"
)

var borrowSelect = `SELECT r.id, r.equipment_id, r.borrower_id, r.start_date, r.end_date, r.message, r.status,
	r.created_at, r.updated_at, r.decided_at, r.returned_at, e.name, e.owner_id, ` + nameOf("bp", "bu") + `
	FROM borrow_requests r
	JOIN equipment e ON e.id = r.equipment_id
	JOIN users bu ON bu.id = r.borrower_id
	LEFT JOIN profiles bp ON bp.user_id = r.borrower_id`

func scanBorrowRequest(row interface{ Scan(...any) error }) (*model.BorrowRequest, error) {
	r := &model.BorrowRequest{}
	if err := row.Scan(&r.ID, &r.EquipmentID, &r.BorrowerID, &r.StartDate, &r.EndDate, &r.Message, &r.Status,
		&r.CreatedAt, &r.UpdatedAt, &r.DecidedAt, &r.ReturnedAt,
		&r.EquipmentName, &r.OwnerID, &r.BorrowerName); err != nil {
		return nil, err
	}
	return r, nil
}

func scanBorrowRequests(rows *sql.Rows) ([]model.BorrowRequest, error) {
	defer rows.Close()

	var requests []model.BorrowRequest
	for rows.Next() {
		r, err := scanBorrowRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning borrow request: %w", err)
		}
		requests = append(requests, *r)
	}
	return requests, rows.Err()
}

// BorrowFilter narrows ListBorrowRequests. UserID matches requests where
// the user is either the borrower or the owner.
type BorrowFilter struct {
	EquipmentID int64
	BorrowerID  int64
	OwnerID     int64
	UserID      int64
	Status      string
}

// RequestBorrow asks to borrow a listing. The listing moves from available
// to requested and a pending request is created, in one transaction. Only
// one request can hold a listing at a time; losers get ErrConflict.
func RequestBorrow(ctx context.Context, db *sql.DB, equipmentID, borrowerID int64, in model.BorrowInput) (*model.BorrowRequest, error) {
	if in.StartDate.Before(today()) {
		return nil, invalid("start_date must not be in the past")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var ownerID int64
	var status string
	err = tx.QueryRowContext(ctx,
		`SELECT owner_id, status FROM equipment WHERE id = ? AND deleted_at IS NULL`, equipmentID,
	).Scan(&ownerID, &status)
	if err == sql.ErrNoRows {
		return nil, notFound("equipment not found")
	}
	if err != nil {
		return nil, fmt.Errorf("loading equipment: %w", err)
	}
	if ownerID == borrowerID {
		return nil, invalid("cannot borrow your own equipment")
	}

	n, err := affected(tx.ExecContext(ctx,
		`UPDATE equipment SET status = 'requested', available = 0, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status = 'available'`, equipmentID,
	))
	if err != nil {
		return nil, fmt.Errorf("reserving equipment: %w", err)
	}
	if n == 0 {
		return nil, conflict("equipment is %s", status)
	}

	result, err := tx.ExecContext(ctx,
		`INSERT INTO borrow_requests (equipment_id, borrower_id, start_date, end_date, message)
		 VALUES (?, ?, ?, ?, ?)`,
		equipmentID, borrowerID, in.StartDate.String(), in.EndDate.String(), in.Message,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, conflict("equipment already has an open request")
		}
		return nil, fmt.Errorf("creating borrow request: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing borrow request: %w", err)
	}

	id, _ := result.LastInsertId()
	return GetBorrowRequest(ctx, db, id)
}

// AcceptBorrowRequest lets the owner accept a pending request. The listing
// becomes borrowed.
func AcceptBorrowRequest(ctx context.Context, db *sql.DB, id, ownerID int64) (*model.BorrowRequest, error) {
	return transition(ctx, db, id, ownerID, transitionRule{
		actor:     actorOwner,
		from:      model.BorrowStatusPending,
		to:        model.BorrowStatusAccepted,
		listing:   model.EquipmentStatusRequested,
		nextState: model.EquipmentStatusBorrowed,
	})
}

// DeclineBorrowRequest lets the owner decline a pending request. The listing
// becomes available again.
func DeclineBorrowRequest(ctx context.Context, db *sql.DB, id, ownerID int64) (*model.BorrowRequest, error) {
	return transition(ctx, db, id, ownerID, transitionRule{
		actor:     actorOwner,
		from:      model.BorrowStatusPending,
		to:        model.BorrowStatusDeclined,
		listing:   model.EquipmentStatusRequested,
		nextState: model.EquipmentStatusAvailable,
	})
}

// CancelBorrowRequest lets the borrower withdraw a pending request.
func CancelBorrowRequest(ctx context.Context, db *sql.DB, id, borrowerID int64) (*model.BorrowRequest, error) {
	return transition(ctx, db, id, borrowerID, transitionRule{
		actor:     actorBorrower,
		from:      model.BorrowStatusPending,
		to:        model.BorrowStatusCancelled,
		listing:   model.EquipmentStatusRequested,
		nextState: model.EquipmentStatusAvailable,
	})
}

// ReturnEquipment marks a lent-out listing as returned. Either side of the
// loan may do this.
func ReturnEquipment(ctx context.Context, db *sql.DB, id, userID int64) (*model.BorrowRequest, error) {
	return transition(ctx, db, id, userID, transitionRule{
		actor:     actorEither,
		from:      model.BorrowStatusAccepted,
		to:        model.BorrowStatusReturned,
		listing:   model.EquipmentStatusBorrowed,
		nextState: model.EquipmentStatusAvailable,
	})
}

type actor int

const (
	actorOwner actor = iota
	actorBorrower
	actorEither
)

type transitionRule struct {
	actor     actor
	from, to  string
	listing   string
	nextState string
}

// transition moves a request and its listing forward with compare-and-set
// updates in one transaction.
func transition(ctx context.Context, db *sql.DB, id, userID int64, rule transitionRule) (*model.BorrowRequest, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	r, err := scanBorrowRequest(tx.QueryRowContext(ctx, borrowSelect+` WHERE r.id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, notFound("borrow request not found")
	}
	if err != nil {
		return nil, fmt.Errorf("loading borrow request: %w", err)
	}

	switch rule.actor {
	case actorOwner:
		if r.OwnerID != userID {
			if r.BorrowerID == userID {
				return nil, forbidden("only the owner can %s a request", verb(rule.to))
			}
			return nil, notFound("borrow request not found")
		}
	case actorBorrower:
		if r.BorrowerID != userID {
			if r.OwnerID == userID {
				return nil, forbidden("only the borrower can %s a request", verb(rule.to))
			}
			return nil, notFound("borrow request not found")
		}
	case actorEither:
		if !r.Participant(userID) {
			return nil, notFound("borrow request not found")
		}
	}

	stamp := "decided_at"
	if rule.to == model.BorrowStatusReturned {
		stamp = "returned_at"
	}
	n, err := affected(tx.ExecContext(ctx,
		`UPDATE borrow_requests SET status = ?, `+stamp+` = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status = ?`,
		rule.to, id, rule.from,
	))
	if err != nil {
		return nil, fmt.Errorf("updating borrow request: %w", err)
	}
	if n == 0 {
		return nil, conflict("borrow request is %s", r.Status)
	}

	available := 0
	if rule.nextState == model.EquipmentStatusAvailable {
		available = 1
	}
	n, err = affected(tx.ExecContext(ctx,
		`UPDATE equipment SET status = ?, available = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status = ?`,
		rule.nextState, available, r.EquipmentID, rule.listing,
	))
	if err != nil {
		return nil, fmt.Errorf("updating equipment: %w", err)
	}
	if n == 0 {
		return nil, conflict("equipment is no longer %s", rule.listing)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing borrow request: %w", err)
	}
	return GetBorrowRequest(ctx, db, id)
}

func verb(status string) string {
	switch status {
	case model.BorrowStatusAccepted:
		return "accept"
	case model.BorrowStatusDeclined:
		return "decline"
	case model.BorrowStatusCancelled:
		return "cancel"
	default:
		return "return"
	}
}

// GetBorrowRequest returns a borrow request by ID.
func GetBorrowRequest(ctx context.Context, db *sql.DB, id int64) (*model.BorrowRequest, error) {
	r, err := scanBorrowRequest(db.QueryRowContext(ctx, borrowSelect+` WHERE r.id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting borrow request: %w", err)
	}
	return r, nil
}

// ListBorrowRequests returns requests matching the filter, newest first.
func ListBorrowRequests(ctx context.Context, db *sql.DB, f BorrowFilter) ([]model.BorrowRequest, error) {
	query := borrowSelect + ` WHERE 1 = 1`
	var args []any
	if f.EquipmentID > 0 {
		query += ` AND r.equipment_id = ?`
		args = append(args, f.EquipmentID)
	}
	if f.BorrowerID > 0 {
		query += ` AND r.borrower_id = ?`
		args = append(args, f.BorrowerID)
	}
	if f.OwnerID > 0 {
		query += ` AND e.owner_id = ?`
		args = append(args, f.OwnerID)
	}
	if f.UserID > 0 {
		query += ` AND (r.borrower_id = ? OR e.owner_id = ?)`
		args = append(args, f.UserID, f.UserID)
	}
	if f.Status != "" {
		query += ` AND r.status = ?`
		args = append(args, f.Status)
	}
	query += ` ORDER BY r.created_at DESC, r.id DESC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing borrow requests: %w", err)
	}
	return scanBorrowRequests(rows)
}

// ListOverdueBorrows returns accepted loans whose end date is before the
// given day and that have not been reported yet.
func ListOverdueBorrows(ctx context.Context, db *sql.DB, day model.Date) ([]model.BorrowRequest, error) {
	rows, err := db.QueryContext(ctx,
		borrowSelect+` WHERE r.status = 'accepted' AND r.overdue_notified = 0 AND r.end_date < ?
		 ORDER BY r.end_date, r.id`, day.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("listing overdue borrows: %w", err)
	}
	return scanBorrowRequests(rows)
}

// MarkOverdueNotified records that a loan's overdue notice was sent.
func MarkOverdueNotified(ctx context.Context, db *sql.DB, id int64) error {
	if _, err := db.ExecContext(ctx,
		`UPDATE borrow_requests SET overdue_notified = 1 WHERE id = ?`, id,
	); err != nil {
		return fmt.Errorf("marking overdue notified: %w", err)
	}
	return nil
}

// SendLendingMessage adds a note to a borrow request's thread. Only the
// borrower and the owner may write.
func SendLendingMessage(ctx context.Context, db *sql.DB, requestID, senderID int64, body string) (*model.LendingMessage, error) {
	r, err := GetBorrowRequest(ctx, db, requestID)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, notFound("borrow request not found")
	}
	if !r.Participant(senderID) {
		return nil, forbidden("not a participant of this request")
	}

	result, err := db.ExecContext(ctx,
		`INSERT INTO lending_messages (request_id, sender_id, body) VALUES (?, ?, ?)`,
		requestID, senderID, body,
	)
	if err != nil {
		return nil, fmt.Errorf("sending lending message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting lending message id: %w", err)
	}

	m := &model.LendingMessage{}
	err = db.QueryRowContext(ctx, lendingMessageSelect+` WHERE m.id = ?`, id).
		Scan(&m.ID, &m.RequestID, &m.SenderID, &m.Body, &m.CreatedAt, &m.SenderName)
	if err != nil {
		return nil, fmt.Errorf("getting lending message: %w", err)
	}
	return m, nil
}

var lendingMessageSelect = `SELECT m.id, m.request_id, m.sender_id, m.body, m.created_at, ` + nameOf("sp", "su") + `
	FROM lending_messages m
	JOIN users su ON su.id = m.sender_id
	LEFT JOIN profiles sp ON sp.user_id = m.sender_id`

// ListLendingMessages returns a request's thread in the order it was written.
func ListLendingMessages(ctx context.Context, db *sql.DB, requestID, userID int64) ([]model.LendingMessage, error) {
	r, err := GetBorrowRequest(ctx, db, requestID)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, notFound("borrow request not found")
	}
	if !r.Participant(userID) {
		return nil, forbidden("not a participant of this request")
	}

	rows, err := db.QueryContext(ctx,
		lendingMessageSelect+` WHERE m.request_id = ? ORDER BY m.id`, requestID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing lending messages: %w", err)
	}
	defer rows.Close()

	var messages []model.LendingMessage
	for rows.Next() {
		var m model.LendingMessage
		if err := rows.Scan(&m.ID, &m.RequestID, &m.SenderID, &m.Body, &m.CreatedAt, &m.SenderName); err != nil {
			return nil, fmt.Errorf("scanning lending message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
