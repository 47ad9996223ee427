package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pbaille/studylog/internal/domain"
)

// Taxonomy returns the ordered subject/unit list
func (s *Store) Taxonomy(ctx context.Context) (domain.Taxonomy, error) {
	return loadTaxonomy(ctx, s.db)
}

func loadTaxonomy(ctx context.Context, q querier) (domain.Taxonomy, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT s.name, u.name
		FROM subjects s
		LEFT JOIN units u ON u.subject = s.name
		ORDER BY s.position, u.position
	`)
	if err != nil {
		return domain.Taxonomy{}, fmt.Errorf("load taxonomy: %w", err)
	}
	defer rows.Close()

	var tax domain.Taxonomy
	for rows.Next() {
		var subject string
		var unit sql.NullString
		if err := rows.Scan(&subject, &unit); err != nil {
			return domain.Taxonomy{}, fmt.Errorf("scan taxonomy: %w", err)
		}
		n := len(tax.Subjects)
		if n == 0 || tax.Subjects[n-1].Name != subject {
			tax.Subjects = append(tax.Subjects, domain.Subject{Name: subject, Units: []string{}})
			n++
		}
		if unit.Valid {
			tax.Subjects[n-1].Units = append(tax.Subjects[n-1].Units, unit.String)
		}
	}
	if err := rows.Err(); err != nil {
		return domain.Taxonomy{}, fmt.Errorf("load taxonomy: %w", err)
	}
	return tax, nil
}

func subjectExists(ctx context.Context, q querier, subject string) (bool, error) {
	var n int
	if err := q.QueryRowContext(ctx, "SELECT COUNT(1) FROM subjects WHERE name = ?", subject).Scan(&n); err != nil {
		return false, fmt.Errorf("find subject: %w", err)
	}
	return n > 0, nil
}

func unitExists(ctx context.Context, q querier, subject, unit string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM units WHERE subject = ? AND name = ?", subject, unit,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("find unit: %w", err)
	}
	return n > 0, nil
}

func insertSubject(ctx context.Context, q querier, subject string) error {
	_, err := q.ExecContext(ctx,
		"INSERT INTO subjects (name, position) VALUES (?, (SELECT COALESCE(MAX(position), -1) + 1 FROM subjects))",
		subject,
	)
	if err != nil {
		return fmt.Errorf("insert subject: %w", err)
	}
	return nil
}

func insertUnit(ctx context.Context, q querier, subject, unit string) error {
	_, err := q.ExecContext(ctx,
		"INSERT INTO units (subject, name, position) VALUES (?, ?, (SELECT COALESCE(MAX(position), -1) + 1 FROM units WHERE subject = ?))",
		subject, unit, subject,
	)
	if err != nil {
		return fmt.Errorf("insert unit: %w", err)
	}
	return nil
}

// ensureUnit creates subject and unit if missing
func ensureUnit(ctx context.Context, q querier, subject, unit string) error {
	ok, err := subjectExists(ctx, q, subject)
	if err != nil {
		return err
	}
	if !ok {
		if err := insertSubject(ctx, q, subject); err != nil {
			return err
		}
	}
	ok, err = unitExists(ctx, q, subject, unit)
	if err != nil {
		return err
	}
	if !ok {
		return insertUnit(ctx, q, subject, unit)
	}
	return nil
}

// resolveUnit returns (subject, unit) if it is in the taxonomy, otherwise the
// Unsorted bucket, creating the bucket on demand.
func resolveUnit(ctx context.Context, q querier, subject, unit string) (string, string, error) {
	subject, unit = domain.NormalizeName(subject), domain.NormalizeName(unit)
	if subject != "" && unit != "" {
		ok, err := unitExists(ctx, q, subject, unit)
		if err != nil {
			return "", "", err
		}
		if ok {
			return subject, unit, nil
		}
	}
	if err := ensureUnit(ctx, q, domain.UnsortedSubject, domain.UnsortedUnit); err != nil {
		return "", "", err
	}
	return domain.UnsortedSubject, domain.UnsortedUnit, nil
}

// EnsureUnsorted creates the reserved fallback bucket if missing
func (s *Store) EnsureUnsorted(ctx context.Context) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return ensureUnit(ctx, tx, domain.UnsortedSubject, domain.UnsortedUnit)
	})
}

func validName(kind, name string) (string, error) {
	name = domain.NormalizeName(name)
	if name == "" {
		return "", fmt.Errorf("%w: empty %s name", ErrInvalid, kind)
	}
	return name, nil
}

// CreateSubject appends a subject with no units
func (s *Store) CreateSubject(ctx context.Context, name string) error {
	name, err := validName("subject", name)
	if err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		ok, err := subjectExists(ctx, tx, name)
		if err != nil {
			return err
		}
		if ok {
			return fmt.Errorf("subject %q: %w", name, ErrExists)
		}
		return insertSubject(ctx, tx, name)
	})
}

// RenameSubject renames a subject and carries its units and pairs along
func (s *Store) RenameSubject(ctx context.Context, from, to string) error {
	from = domain.NormalizeName(from)
	to, err := validName("subject", to)
	if err != nil {
		return err
	}
	if domain.IsReserved(from, "") || domain.IsReserved(to, "") {
		return fmt.Errorf("rename subject %q: %w", from, ErrReserved)
	}
	if from == to {
		return nil
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		ok, err := subjectExists(ctx, tx, from)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("subject %q: %w", from, ErrUnknownLocation)
		}
		ok, err = subjectExists(ctx, tx, to)
		if err != nil {
			return err
		}
		if ok {
			return fmt.Errorf("subject %q: %w", to, ErrExists)
		}

		stmts := []string{
			"UPDATE subjects SET name = ? WHERE name = ?",
			"UPDATE units SET subject = ? WHERE subject = ?",
			"UPDATE pairs SET subject = ? WHERE subject = ?",
		}
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt, to, from); err != nil {
				return fmt.Errorf("rename subject: %w", err)
			}
		}
		return nil
	})
}

// DeleteSubject removes a subject and its units. Its pairs are detached:
// they leave every unit transcript but stay in their day transcripts.
func (s *Store) DeleteSubject(ctx context.Context, name string) error {
	name = domain.NormalizeName(name)
	if domain.IsReserved(name, "") {
		return fmt.Errorf("delete subject %q: %w", name, ErrReserved)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		ok, err := subjectExists(ctx, tx, name)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("subject %q: %w", name, ErrUnknownLocation)
		}

		if _, err := tx.ExecContext(ctx,
			"UPDATE pairs SET subject = NULL, unit = NULL, unit_pos = NULL WHERE subject = ?", name,
		); err != nil {
			return fmt.Errorf("detach pairs: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM units WHERE subject = ?", name); err != nil {
			return fmt.Errorf("delete units: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM subjects WHERE name = ?", name); err != nil {
			return fmt.Errorf("delete subject: %w", err)
		}
		return nil
	})
}

// CreateUnit appends a unit to an existing subject
func (s *Store) CreateUnit(ctx context.Context, subject, unit string) error {
	subject = domain.NormalizeName(subject)
	unit, err := validName("unit", unit)
	if err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		ok, err := subjectExists(ctx, tx, subject)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("subject %q: %w", subject, ErrUnknownLocation)
		}
		ok, err = unitExists(ctx, tx, subject, unit)
		if err != nil {
			return err
		}
		if ok {
			return fmt.Errorf("unit %q: %w", unit, ErrExists)
		}
		return insertUnit(ctx, tx, subject, unit)
	})
}

// RenameUnit renames a unit within its subject and carries its pairs along
func (s *Store) RenameUnit(ctx context.Context, subject, from, to string) error {
	subject = domain.NormalizeName(subject)
	from = domain.NormalizeName(from)
	to, err := validName("unit", to)
	if err != nil {
		return err
	}
	if domain.IsReserved(subject, from) || domain.IsReserved(subject, to) {
		return fmt.Errorf("rename unit %q: %w", from, ErrReserved)
	}
	if from == to {
		return nil
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		ok, err := unitExists(ctx, tx, subject, from)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("unit %s > %s: %w", subject, from, ErrUnknownLocation)
		}
		ok, err = unitExists(ctx, tx, subject, to)
		if err != nil {
			return err
		}
		if ok {
			return fmt.Errorf("unit %q: %w", to, ErrExists)
		}

		if _, err := tx.ExecContext(ctx,
			"UPDATE units SET name = ? WHERE subject = ? AND name = ?", to, subject, from,
		); err != nil {
			return fmt.Errorf("rename unit: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE pairs SET unit = ? WHERE subject = ? AND unit = ?", to, subject, from,
		); err != nil {
			return fmt.Errorf("rename unit pairs: %w", err)
		}
		return nil
	})
}

// DeleteUnit removes a unit and detaches its pairs
func (s *Store) DeleteUnit(ctx context.Context, subject, unit string) error {
	subject = domain.NormalizeName(subject)
	unit = domain.NormalizeName(unit)
	if domain.IsReserved(subject, unit) {
		return fmt.Errorf("delete unit %q: %w", unit, ErrReserved)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		ok, err := unitExists(ctx, tx, subject, unit)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("unit %s > %s: %w", subject, unit, ErrUnknownLocation)
		}

		if _, err := tx.ExecContext(ctx,
			"UPDATE pairs SET subject = NULL, unit = NULL, unit_pos = NULL WHERE subject = ? AND unit = ?",
			subject, unit,
		); err != nil {
			return fmt.Errorf("detach pairs: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM units WHERE subject = ? AND name = ?", subject, unit,
		); err != nil {
			return fmt.Errorf("delete unit: %w", err)
		}
		return nil
	})
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
