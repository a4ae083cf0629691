package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/digital-asset-harvester/internal/model"
)

// PurchaseFilter narrows GetPurchases. Zero values match everything.
type PurchaseFilter struct {
	From   time.Time
	To     time.Time
	Vendor string
	Symbol string
	Limit  int
}

// SavePurchases stores purchases, skipping any whose hash is already in the
// ledger. It returns the number of new rows.
func (s *SQLiteStorage) SavePurchases(ctx context.Context, runID string, purchases []model.Purchase) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if len(purchases) == 0 {
		return 0, nil
	}
	for i := range purchases {
		if err := validatePurchase(&purchases[i]); err != nil {
			return 0, fmt.Errorf("purchase at index %d: %w", i, err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO purchases (
			id, hash, purchase_date, vendor, crypto_symbol, crypto_amount,
			fiat_amount, fiat_currency, fee_amount, fee_currency, transaction_id,
			transaction_type, source, provider, confidence, message_id,
			email_source, validation_mode, warnings, reward, run_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	inserted := 0
	for _, p := range purchases {
		if p.ID == "" {
			p.AssignID()
		}

		var fee sql.NullString
		if p.FeeAmount.Valid {
			fee = sql.NullString{String: p.FeeAmount.Decimal.String(), Valid: true}
		}

		var warnings sql.NullString
		if len(p.Warnings) > 0 {
			data, marshalErr := json.Marshal(p.Warnings)
			if marshalErr != nil {
				return 0, fmt.Errorf("failed to marshal warnings: %w", marshalErr)
			}
			warnings = sql.NullString{String: string(data), Valid: true}
		}

		res, execErr := stmt.ExecContext(ctx,
			p.ID,
			p.GenerateHash(),
			p.PurchaseDate.UTC(),
			p.Vendor,
			p.CryptoSymbol,
			p.CryptoAmount.String(),
			p.FiatAmount.String(),
			p.FiatCurrency,
			fee,
			p.FeeCurrency,
			p.TransactionID,
			string(p.TransactionType),
			string(p.Source),
			p.Provider,
			p.Confidence,
			p.MessageID,
			p.EmailSource,
			string(p.Mode),
			warnings,
			p.Reward,
			runID,
		)
		if execErr != nil {
			return 0, fmt.Errorf("failed to insert purchase %s: %w", p.ID, execErr)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit purchases: %w", err)
	}
	return inserted, nil
}

// GetPurchases returns stored purchases ordered by purchase date.
func (s *SQLiteStorage) GetPurchases(ctx context.Context, filter PurchaseFilter) ([]model.Purchase, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := `
		SELECT id, purchase_date, vendor, crypto_symbol, crypto_amount, fiat_amount,
			fiat_currency, fee_amount, fee_currency, transaction_id, transaction_type,
			source, provider, confidence, message_id, email_source, validation_mode,
			warnings, reward
		FROM purchases`

	var (
		conditions []string
		args       []any
	)
	if !filter.From.IsZero() {
		conditions = append(conditions, "purchase_date >= ?")
		args = append(args, filter.From.UTC())
	}
	if !filter.To.IsZero() {
		conditions = append(conditions, "purchase_date <= ?")
		args = append(args, filter.To.UTC())
	}
	if filter.Vendor != "" {
		conditions = append(conditions, "LOWER(vendor) = LOWER(?)")
		args = append(args, filter.Vendor)
	}
	if filter.Symbol != "" {
		conditions = append(conditions, "crypto_symbol = ?")
		args = append(args, strings.ToUpper(filter.Symbol))
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY purchase_date, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query purchases: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var purchases []model.Purchase
	for rows.Next() {
		p, scanErr := scanPurchase(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		purchases = append(purchases, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating purchases: %w", err)
	}
	return purchases, nil
}

// CountPurchases returns the number of purchases in the ledger.
func (s *SQLiteStorage) CountPurchases(ctx context.Context) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM purchases").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count purchases: %w", err)
	}
	return n, nil
}

func scanPurchase(rows *sql.Rows) (model.Purchase, error) {
	var (
		p                        model.Purchase
		cryptoAmount, fiatAmount string
		fee, feeCurrency, txID   sql.NullString
		provider, messageID, src sql.NullString
		warnings                 sql.NullString
		txType, source, mode     string
	)
	err := rows.Scan(
		&p.ID, &p.PurchaseDate, &p.Vendor, &p.CryptoSymbol, &cryptoAmount, &fiatAmount,
		&p.FiatCurrency, &fee, &feeCurrency, &txID, &txType,
		&source, &provider, &p.Confidence, &messageID, &src, &mode,
		&warnings, &p.Reward,
	)
	if err != nil {
		return model.Purchase{}, fmt.Errorf("failed to scan purchase: %w", err)
	}

	if p.CryptoAmount, err = decimal.NewFromString(cryptoAmount); err != nil {
		return model.Purchase{}, fmt.Errorf("purchase %s: bad crypto amount %q: %w", p.ID, cryptoAmount, err)
	}
	if p.FiatAmount, err = decimal.NewFromString(fiatAmount); err != nil {
		return model.Purchase{}, fmt.Errorf("purchase %s: bad fiat amount %q: %w", p.ID, fiatAmount, err)
	}
	if fee.Valid {
		d, feeErr := decimal.NewFromString(fee.String)
		if feeErr != nil {
			return model.Purchase{}, fmt.Errorf("purchase %s: bad fee %q: %w", p.ID, fee.String, feeErr)
		}
		p.FeeAmount = decimal.NewNullDecimal(d)
	}
	if warnings.Valid && warnings.String != "" {
		if err := json.Unmarshal([]byte(warnings.String), &p.Warnings); err != nil {
			return model.Purchase{}, fmt.Errorf("purchase %s: bad warnings: %w", p.ID, err)
		}
	}

	p.PurchaseDate = p.PurchaseDate.UTC()
	p.FeeCurrency = feeCurrency.String
	p.TransactionID = txID.String
	p.TransactionType = model.TransactionType(txType)
	p.Source = model.ExtractionSource(source)
	p.Provider = provider.String
	p.MessageID = messageID.String
	p.EmailSource = src.String
	p.Mode = model.ValidationMode(mode)
	return p, nil
}
