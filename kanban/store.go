package kanban

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/h4mn/skybridge/logger"
)

const defaultBoardName = "default"

// Store is the per-workspace SQLite-backed kanban projection.
type Store struct {
	log logger.Logger
	db  *sql.DB

	boardID int64
	listIDs map[string]int64 // name -> id, for the default board
}

// Open opens (creating if necessary) the SQLite database at path, runs the
// schema, and bootstraps the default board with its six lists.
func Open(l logger.Logger, path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("kanban: opening %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // one writer per workspace; WAL lets readers run concurrently alongside it

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("kanban: applying schema: %w", err)
	}

	s := &Store{log: l, db: db, listIDs: make(map[string]int64)}
	if err := s.bootstrap(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) bootstrap() error {
	var boardID int64
	err := s.db.QueryRow(`SELECT id FROM boards WHERE name = ?`, defaultBoardName).Scan(&boardID)
	if err == sql.ErrNoRows {
		res, err := s.db.Exec(`INSERT INTO boards (name) VALUES (?)`, defaultBoardName)
		if err != nil {
			return fmt.Errorf("kanban: creating default board: %w", err)
		}
		boardID, _ = res.LastInsertId()
	} else if err != nil {
		return fmt.Errorf("kanban: loading default board: %w", err)
	}
	s.boardID = boardID

	for i, name := range DefaultLists {
		var listID int64
		err := s.db.QueryRow(`SELECT id FROM lists WHERE board_id = ? AND name = ?`, boardID, name).Scan(&listID)
		if err == sql.ErrNoRows {
			res, err := s.db.Exec(`INSERT INTO lists (board_id, name, position) VALUES (?, ?, ?)`, boardID, name, i)
			if err != nil {
				return fmt.Errorf("kanban: creating list %s: %w", name, err)
			}
			listID, _ = res.LastInsertId()
		} else if err != nil {
			return fmt.Errorf("kanban: loading list %s: %w", name, err)
		}
		s.listIDs[name] = listID
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// ListIDByName resolves a default-board list name (e.g. "Em Andamento") to
// its id, for callers that need to move a card by name rather than id.
func (s *Store) ListIDByName(name string) (int64, bool) {
	id, ok := s.listIDs[name]
	return id, ok
}

// ListBoards returns every board (today, always just the default one).
func (s *Store) ListBoards() ([]Board, error) {
	rows, err := s.db.Query(`SELECT id, name FROM boards`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var boards []Board
	for rows.Next() {
		var b Board
		if err := rows.Scan(&b.ID, &b.Name); err != nil {
			return nil, err
		}
		boards = append(boards, b)
	}
	return boards, rows.Err()
}

// ListLists returns every list on boardID, ordered by position.
func (s *Store) ListLists(boardID int64) ([]List, error) {
	rows, err := s.db.Query(`SELECT id, board_id, name, position FROM lists WHERE board_id = ? ORDER BY position`, boardID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lists []List
	for rows.Next() {
		var l List
		if err := rows.Scan(&l.ID, &l.BoardID, &l.Name, &l.Position); err != nil {
			return nil, err
		}
		lists = append(lists, l)
	}
	return lists, rows.Err()
}

// ListCards returns cards matching filter, ordered per the invariant
// being_processed DESC, position ASC, created_at DESC.
func (s *Store) ListCards(filter CardFilter) ([]Card, error) {
	query := `SELECT id, list_id, title, description, position, labels, being_processed,
		processing_started_at, processing_job_id, processing_step, processing_total_steps,
		issue_number, issue_url, author, pr_url, erro_reason, created_at, updated_at FROM cards WHERE 1=1`
	var args []any

	if filter.ListID != 0 {
		query += ` AND list_id = ?`
		args = append(args, filter.ListID)
	}
	if filter.BeingProcessed != nil {
		query += ` AND being_processed = ?`
		args = append(args, boolToInt(*filter.BeingProcessed))
	}
	query += ` ORDER BY being_processed DESC, position ASC, created_at DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cards []Card
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		cards = append(cards, c)
	}
	return cards, rows.Err()
}

// GetCard returns one card by id.
func (s *Store) GetCard(id int64) (*Card, error) {
	row := s.db.QueryRow(`SELECT id, list_id, title, description, position, labels, being_processed,
		processing_started_at, processing_job_id, processing_step, processing_total_steps,
		issue_number, issue_url, author, pr_url, erro_reason, created_at, updated_at FROM cards WHERE id = ?`, id)

	c, err := scanCard(row)
	if err == sql.ErrNoRows {
		return nil, ErrCardNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetCardHistory returns the append-only history for a card, oldest first.
func (s *Store) GetCardHistory(cardID int64) ([]CardHistoryEntry, error) {
	rows, err := s.db.Query(`SELECT id, card_id, event, from_list_id, to_list_id, metadata, occurred_at
		FROM card_history WHERE card_id = ? ORDER BY occurred_at ASC`, cardID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []CardHistoryEntry
	for rows.Next() {
		var h CardHistoryEntry
		if err := rows.Scan(&h.ID, &h.CardID, &h.Event, &h.FromListID, &h.ToListID, &h.Metadata, &h.OccurredAt); err != nil {
			return nil, err
		}
		history = append(history, h)
	}
	return history, rows.Err()
}

// CreateCard inserts a new card into listID. listID of 0 is rejected with
// ErrListNotSpecified; a non-existent listID is rejected with
// ErrListNotFound.
func (s *Store) CreateCard(listID int64, title, description, issueNumber string, labels []string) (*Card, error) {
	return s.CreateCardWithMeta(listID, title, description, issueNumber, "", "", labels)
}

// CreateCardWithMeta is CreateCard extended with the author-visibility
// metadata spec.md §4.10 requires IssueReceivedEvent to set on the card
// (issue_url, author), in addition to the fields CreateCard already covers.
func (s *Store) CreateCardWithMeta(listID int64, title, description, issueNumber, issueURL, author string, labels []string) (*Card, error) {
	if listID == 0 {
		return nil, ErrListNotSpecified
	}
	if !s.listExists(listID) {
		return nil, ErrListNotFound
	}

	now := time.Now()
	labelsJSON, _ := json.Marshal(labels)

	res, err := s.db.Exec(`INSERT INTO cards (list_id, title, description, labels, issue_number, issue_url, author, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, listID, title, description, string(labelsJSON), issueNumber, issueURL, author, now, now)
	if err != nil {
		return nil, fmt.Errorf("kanban: creating card: %w", err)
	}
	id, _ := res.LastInsertId()

	if err := s.appendHistory(id, EventCreated, nil, &listID, ""); err != nil {
		s.log.Error("kanban: recording created history for card %d: %v", id, err)
	}

	return s.GetCard(id)
}

// UpdateCard applies partial field updates to an existing card.
func (s *Store) UpdateCard(id int64, title, description *string, labels []string) (*Card, error) {
	return s.UpdateCardWithMeta(id, title, description, nil, nil, labels)
}

// UpdateCardWithMeta is UpdateCard extended with issueURL/author, so the
// IssueReceived projection can refresh those fields on a re-delivered
// webhook the same way it refreshes title/description/labels.
func (s *Store) UpdateCardWithMeta(id int64, title, description, issueURL, author *string, labels []string) (*Card, error) {
	card, err := s.GetCard(id)
	if err != nil {
		return nil, err
	}

	if title != nil {
		card.Title = *title
	}
	if description != nil {
		card.Description = *description
	}
	if issueURL != nil {
		card.IssueURL = *issueURL
	}
	if author != nil {
		card.Author = *author
	}
	if labels != nil {
		card.Labels = labels
	}

	labelsJSON, _ := json.Marshal(card.Labels)
	_, err = s.db.Exec(`UPDATE cards SET title = ?, description = ?, labels = ?, issue_url = ?, author = ?, updated_at = ? WHERE id = ?`,
		card.Title, card.Description, string(labelsJSON), card.IssueURL, card.Author, time.Now(), id)
	if err != nil {
		return nil, fmt.Errorf("kanban: updating card %d: %w", id, err)
	}

	if err := s.appendHistory(id, EventUpdated, nil, nil, ""); err != nil {
		s.log.Error("kanban: recording updated history for card %d: %v", id, err)
	}

	return s.GetCard(id)
}

// MoveCard relocates a card to a different list. toListID of 0 is rejected
// with ErrListNotSpecified.
func (s *Store) MoveCard(id, toListID int64) (*Card, error) {
	if toListID == 0 {
		return nil, ErrListNotSpecified
	}
	if !s.listExists(toListID) {
		return nil, ErrListNotFound
	}

	card, err := s.GetCard(id)
	if err != nil {
		return nil, err
	}
	fromListID := card.ListID

	_, err = s.db.Exec(`UPDATE cards SET list_id = ?, updated_at = ? WHERE id = ?`, toListID, time.Now(), id)
	if err != nil {
		return nil, fmt.Errorf("kanban: moving card %d: %w", id, err)
	}

	if err := s.appendHistory(id, EventMoved, &fromListID, &toListID, ""); err != nil {
		s.log.Error("kanban: recording moved history for card %d: %v", id, err)
	}

	return s.GetCard(id)
}

// DeleteCard removes a card and records the deletion in its history before
// the row disappears (history rows reference the card id, which remains
// meaningful for audit even after deletion).
func (s *Store) DeleteCard(id int64) error {
	if _, err := s.GetCard(id); err != nil {
		return err
	}
	if err := s.appendHistory(id, EventDeleted, nil, nil, ""); err != nil {
		s.log.Error("kanban: recording deleted history for card %d: %v", id, err)
	}
	_, err := s.db.Exec(`DELETE FROM cards WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("kanban: deleting card %d: %w", id, err)
	}
	return nil
}

// findByIssueNumber returns the card stamped with issueNumber, or nil if
// none exists yet.
func (s *Store) findByIssueNumber(issueNumber string) (*Card, error) {
	row := s.db.QueryRow(`SELECT id, list_id, title, description, position, labels, being_processed,
		processing_started_at, processing_job_id, processing_step, processing_total_steps,
		issue_number, issue_url, author, pr_url, erro_reason, created_at, updated_at FROM cards WHERE issue_number = ?`, issueNumber)

	c, err := scanCard(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// findByProcessingJobID returns the card currently being worked by jobID,
// or nil if none is found (the job may already have been reconciled).
func (s *Store) findByProcessingJobID(jobID string) (*Card, error) {
	row := s.db.QueryRow(`SELECT id, list_id, title, description, position, labels, being_processed,
		processing_started_at, processing_job_id, processing_step, processing_total_steps,
		issue_number, issue_url, author, pr_url, erro_reason, created_at, updated_at FROM cards WHERE processing_job_id = ?`, jobID)

	c, err := scanCard(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// setIssueNumber stamps a card with the issue number it projects,
// overwriting whatever issue_number the card was created with.
func (s *Store) setIssueNumber(id int64, issueNumber string) error {
	_, err := s.db.Exec(`UPDATE cards SET issue_number = ? WHERE id = ?`, issueNumber, id)
	return err
}

// startProcessing marks a card as being worked: being_processed=true,
// position=0 (per the invariant), and moves it to the list the skill maps
// to.
func (s *Store) startProcessing(id int64, jobID string, toListID int64) error {
	card, err := s.GetCard(id)
	if err != nil {
		return err
	}
	fromListID := card.ListID

	now := time.Now()
	_, err = s.db.Exec(`UPDATE cards SET list_id = ?, being_processed = 1, position = 0,
		processing_started_at = ?, processing_job_id = ?, processing_step = 0,
		processing_total_steps = 0, updated_at = ? WHERE id = ?`,
		toListID, now, jobID, now, id)
	if err != nil {
		return fmt.Errorf("kanban: starting processing on card %d: %w", id, err)
	}

	return s.appendHistory(id, EventProcessingStarted, &fromListID, &toListID, jobID)
}

// updateProgress records a thinking-step count against the card currently
// processing jobID.
func (s *Store) updateProgress(id int64, step, total int) error {
	_, err := s.db.Exec(`UPDATE cards SET processing_step = ?, processing_total_steps = ?, updated_at = ? WHERE id = ?`,
		step, total, time.Now(), id)
	return err
}

// finishProcessing clears being_processed, moves the card to toListID, and
// appends a history row. Used by both JobCompleted (-> Em Revisão) and
// JobFailed (-> Issues, with erroMessage recorded in history metadata).
func (s *Store) finishProcessing(id, toListID int64, event HistoryEvent, erroMessage string) error {
	card, err := s.GetCard(id)
	if err != nil {
		return err
	}
	fromListID := card.ListID

	now := time.Now()
	_, err = s.db.Exec(`UPDATE cards SET list_id = ?, being_processed = 0, processing_job_id = '',
		erro_reason = ?, updated_at = ? WHERE id = ?`, toListID, erroMessage, now, id)
	if err != nil {
		return fmt.Errorf("kanban: finishing processing on card %d: %w", id, err)
	}

	return s.appendHistory(id, event, &fromListID, &toListID, erroMessage)
}

// setPRURL records a created pull request's URL on the card.
func (s *Store) setPRURL(id int64, prURL string) error {
	_, err := s.db.Exec(`UPDATE cards SET pr_url = ?, updated_at = ? WHERE id = ?`, prURL, time.Now(), id)
	return err
}

// addLabel appends label to the card's label set if not already present.
func (s *Store) addLabel(id int64, label string) error {
	card, err := s.GetCard(id)
	if err != nil {
		return err
	}
	for _, l := range card.Labels {
		if l == label {
			return nil
		}
	}
	card.Labels = append(card.Labels, label)
	labelsJSON, _ := json.Marshal(card.Labels)
	_, err = s.db.Exec(`UPDATE cards SET labels = ?, updated_at = ? WHERE id = ?`, string(labelsJSON), time.Now(), id)
	return err
}

func (s *Store) listExists(listID int64) bool {
	var id int64
	err := s.db.QueryRow(`SELECT id FROM lists WHERE id = ?`, listID).Scan(&id)
	return err == nil
}

func (s *Store) appendHistory(cardID int64, event HistoryEvent, fromListID, toListID *int64, metadata string) error {
	_, err := s.db.Exec(`INSERT INTO card_history (card_id, event, from_list_id, to_list_id, metadata, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?)`, cardID, event, fromListID, toListID, metadata, time.Now())
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCard(row scanner) (Card, error) {
	var c Card
	var labelsJSON string
	var processingStartedAt sql.NullTime

	err := row.Scan(&c.ID, &c.ListID, &c.Title, &c.Description, &c.Position, &labelsJSON, &c.BeingProcessed,
		&processingStartedAt, &c.ProcessingJobID, &c.ProcessingStep, &c.ProcessingTotalSteps,
		&c.IssueNumber, &c.IssueURL, &c.Author, &c.PRURL, &c.ErroReason, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return c, err
	}

	if processingStartedAt.Valid {
		c.ProcessingStartedAt = &processingStartedAt.Time
	}
	_ = json.Unmarshal([]byte(labelsJSON), &c.Labels)

	return c, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
