package storage

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const changeSelect = `
	SELECT id, sys_id, number, short_description, description, state, priority,
	       jira_issue_key, github_repo, github_pr_number, created_at, updated_at
	FROM change_requests`

// SaveChangeRequest inserts a mirror record for an externally created change
// and returns it with its local id and timestamps filled in.
func (s *Store) SaveChangeRequest(cr ChangeRequest) (ChangeRequest, error) {
	now := time.Now().UTC()
	res, err := s.db.Exec(`
		INSERT INTO change_requests
			(sys_id, number, short_description, description, state, priority,
			 jira_issue_key, github_repo, github_pr_number, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cr.SysID, cr.Number, cr.ShortDescription, cr.Description, cr.State, cr.Priority,
		cr.JiraIssueKey, cr.GitHubRepo, cr.GitHubPRNumber,
		now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		return ChangeRequest{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return ChangeRequest{}, err
	}
	cr.ID = id
	cr.CreatedAt = now
	cr.UpdatedAt = now
	return cr, nil
}

func (s *Store) GetChangeRequest(id int64) (ChangeRequest, error) {
	return s.scanChange(s.db.QueryRow(changeSelect+` WHERE id = ?`, id))
}

// FindChangeRequestByNumber looks up a record by its human-readable number.
// The number is matched exactly as stored; callers normalize first.
func (s *Store) FindChangeRequestByNumber(number string) (ChangeRequest, error) {
	return s.scanChange(s.db.QueryRow(changeSelect+` WHERE number = ?`, number))
}

// ListChangeRequests returns mirror records, most recent first.
func (s *Store) ListChangeRequests(limit int) ([]ChangeRequest, error) {
	rows, err := s.db.Query(changeSelect+` ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []ChangeRequest
	for rows.Next() {
		cr, err := s.scanChange(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, cr)
	}
	return results, rows.Err()
}

// NextChangeNumber allocates the next CHG number for locally minted records,
// continuing from the highest number already stored.
func (s *Store) NextChangeNumber() (string, error) {
	var last sql.NullString
	err := s.db.QueryRow(`
		SELECT number FROM change_requests
		WHERE number LIKE 'CHG%' ORDER BY number DESC LIMIT 1`).Scan(&last)
	if err != nil && err != sql.ErrNoRows {
		return "", err
	}

	next := 1
	if last.Valid {
		n, err := strconv.Atoi(strings.TrimPrefix(last.String, "CHG"))
		if err != nil {
			return "", fmt.Errorf("parsing last change number %q: %w", last.String, err)
		}
		next = n + 1
	}
	return fmt.Sprintf("CHG%07d", next), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanChange(row rowScanner) (ChangeRequest, error) {
	var cr ChangeRequest
	var createdAt, updatedAt string
	err := row.Scan(&cr.ID, &cr.SysID, &cr.Number, &cr.ShortDescription, &cr.Description,
		&cr.State, &cr.Priority, &cr.JiraIssueKey, &cr.GitHubRepo, &cr.GitHubPRNumber,
		&createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return ChangeRequest{}, ErrNotFound
	}
	if err != nil {
		return ChangeRequest{}, err
	}
	if cr.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return ChangeRequest{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if cr.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return ChangeRequest{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return cr, nil
}
