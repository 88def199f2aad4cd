package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/breffi/content-sync/pkg/contentsync"
)

// Repository implements contentsync.Repository using PostgreSQL. Multi-row
// commits run inside pgx transactions.
type Repository struct {
	pool *pgxpool.Pool
}

// NewWithPool creates a new PostgreSQL repository with a connection pool
func NewWithPool(pool *pgxpool.Pool) contentsync.Repository {
	return &Repository{pool: pool}
}

// Error handling helper
func (r *Repository) handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return contentsync.ErrDuplicateGUID
		case "23503": // foreign_key_violation
			return fmt.Errorf("referenced record not found")
		case "23502": // not_null_violation
			return fmt.Errorf("required field %s is missing", pgErr.ColumnName)
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}

	return fmt.Errorf("database error in %s: %w", operation, err)
}

func (r *Repository) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Client operations

func (r *Repository) SaveClient(ctx context.Context, client *contentsync.Client) error {
	query := `
		INSERT INTO client (
			client_id, name, url, email, img_id, thumb_img_id,
			short_description, long_description, synchronized, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (client_id) DO UPDATE SET
			name = EXCLUDED.name, url = EXCLUDED.url, email = EXCLUDED.email,
			img_id = EXCLUDED.img_id, thumb_img_id = EXCLUDED.thumb_img_id,
			short_description = EXCLUDED.short_description,
			long_description = EXCLUDED.long_description,
			synchronized = EXCLUDED.synchronized, updated_at = EXCLUDED.updated_at`

	_, err := r.pool.Exec(ctx, query,
		client.ClientID, client.Name, client.URL, client.Email, client.ImgID,
		client.ThumbImgID, client.ShortDescription, client.LongDescription,
		client.Synchronized, client.CreatedAt, client.UpdatedAt)

	if err != nil {
		return r.handlePostgresError("save client", err)
	}

	return nil
}

func (r *Repository) GetClient(ctx context.Context, id int64) (*contentsync.Client, error) {
	query := `
		SELECT client_id, name, url, email, img_id, thumb_img_id,
		       short_description, long_description, synchronized, created_at, updated_at
		FROM client WHERE client_id = $1`

	var client contentsync.Client
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&client.ClientID, &client.Name, &client.URL, &client.Email, &client.ImgID,
		&client.ThumbImgID, &client.ShortDescription, &client.LongDescription,
		&client.Synchronized, &client.CreatedAt, &client.UpdatedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, contentsync.ErrClientNotFound
		}
		return nil, err
	}

	return &client, nil
}

func (r *Repository) ListClients(ctx context.Context) ([]*contentsync.Client, error) {
	query := `
		SELECT client_id, name, url, email, img_id, thumb_img_id,
		       short_description, long_description, synchronized, created_at, updated_at
		FROM client ORDER BY client_id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*contentsync.Client
	for rows.Next() {
		var client contentsync.Client
		if err := rows.Scan(
			&client.ClientID, &client.Name, &client.URL, &client.Email, &client.ImgID,
			&client.ThumbImgID, &client.ShortDescription, &client.LongDescription,
			&client.Synchronized, &client.CreatedAt, &client.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, &client)
	}

	return result, rows.Err()
}

func (r *Repository) DeleteClient(ctx context.Context, id int64) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT presentation_id FROM presentation WHERE client_id = $1`, id)
		if err != nil {
			return err
		}
		var presentationIDs []int64
		for rows.Next() {
			var pid int64
			if err := rows.Scan(&pid); err != nil {
				rows.Close()
				return err
			}
			presentationIDs = append(presentationIDs, pid)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, pid := range presentationIDs {
			if err := deletePresentationTx(ctx, tx, pid); err != nil {
				return err
			}
		}

		tag, err := tx.Exec(ctx, `DELETE FROM client WHERE client_id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return contentsync.ErrClientNotFound
		}
		return nil
	})
}

// Presentation operations

const presentationColumns = `
	presentation_id, client_id, revision, sync_state, name, sort_order,
	visibility, preview_mode, img_id, short_description, long_description,
	need_confirmation, skip, opened, debug_mode_enabled, raw_data,
	created_at, updated_at`

func scanPresentation(row pgx.Row) (*contentsync.Presentation, error) {
	var p contentsync.Presentation
	err := row.Scan(
		&p.PresentationID, &p.ClientID, &p.Revision, &p.SyncState, &p.Name,
		&p.Order, &p.Visibility, &p.PreviewMode, &p.ImgID, &p.ShortDescription,
		&p.LongDescription, &p.NeedConfirmation, &p.Skip, &p.Opened,
		&p.DebugModeEnabled, &p.RawData, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repository) GetPresentation(ctx context.Context, id int64) (*contentsync.Presentation, error) {
	query := `SELECT ` + presentationColumns + ` FROM presentation WHERE presentation_id = $1`

	p, err := scanPresentation(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, contentsync.ErrPresentationNotFound
		}
		return nil, err
	}

	return p, nil
}

func (r *Repository) ListPresentationsByClient(ctx context.Context, clientID int64) ([]*contentsync.Presentation, error) {
	query := `SELECT ` + presentationColumns + ` FROM presentation
		WHERE client_id = $1 ORDER BY sort_order, presentation_id`

	rows, err := r.pool.Query(ctx, query, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*contentsync.Presentation
	for rows.Next() {
		p, err := scanPresentation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}

	return result, rows.Err()
}

func upsertPresentationTx(ctx context.Context, tx pgx.Tx, p *contentsync.Presentation) error {
	query := `
		INSERT INTO presentation (` + presentationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (presentation_id) DO UPDATE SET
			client_id = EXCLUDED.client_id, revision = EXCLUDED.revision,
			sync_state = EXCLUDED.sync_state, name = EXCLUDED.name,
			sort_order = EXCLUDED.sort_order, visibility = EXCLUDED.visibility,
			preview_mode = EXCLUDED.preview_mode, img_id = EXCLUDED.img_id,
			short_description = EXCLUDED.short_description,
			long_description = EXCLUDED.long_description,
			need_confirmation = EXCLUDED.need_confirmation, skip = EXCLUDED.skip,
			opened = EXCLUDED.opened, debug_mode_enabled = EXCLUDED.debug_mode_enabled,
			raw_data = EXCLUDED.raw_data, updated_at = EXCLUDED.updated_at`

	_, err := tx.Exec(ctx, query,
		p.PresentationID, p.ClientID, p.Revision, p.SyncState, p.Name, p.Order,
		p.Visibility, p.PreviewMode, p.ImgID, p.ShortDescription, p.LongDescription,
		p.NeedConfirmation, p.Skip, p.Opened, p.DebugModeEnabled, p.RawData,
		p.CreatedAt, p.UpdatedAt)
	return err
}

func upsertSlideTx(ctx context.Context, tx pgx.Tx, s *contentsync.Slide) error {
	query := `
		INSERT INTO slide (
			slide_id, presentation_id, revision, name, page_source,
			linked_slides, swipe_next, swipe_previous, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (slide_id) DO UPDATE SET
			presentation_id = EXCLUDED.presentation_id, revision = EXCLUDED.revision,
			name = EXCLUDED.name, page_source = EXCLUDED.page_source,
			linked_slides = EXCLUDED.linked_slides, swipe_next = EXCLUDED.swipe_next,
			swipe_previous = EXCLUDED.swipe_previous, updated_at = EXCLUDED.updated_at`

	_, err := tx.Exec(ctx, query,
		s.SlideID, s.PresentationID, s.Revision, s.Name, s.PageSource,
		s.LinkedSlides, s.SwipeNext, s.SwipePrevious, s.CreatedAt, s.UpdatedAt)
	return err
}

func (r *Repository) SavePresentationRevision(ctx context.Context, p *contentsync.Presentation, slides []*contentsync.Slide) error {
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		// Revisions only move forward; a regression is a conflict the caller
		// must resolve, never an overwrite.
		var current int64
		err := tx.QueryRow(ctx,
			`SELECT revision FROM presentation WHERE presentation_id = $1 FOR UPDATE`,
			p.PresentationID).Scan(&current)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return err
		}
		if err == nil && current > p.Revision {
			return contentsync.ErrConflictRevision
		}

		if err := upsertPresentationTx(ctx, tx, p); err != nil {
			return err
		}
		for _, slide := range slides {
			slide.PresentationID = p.PresentationID
			if err := upsertSlideTx(ctx, tx, slide); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, contentsync.ErrConflictRevision) {
			return err
		}
		return r.handlePostgresError("save presentation revision", err)
	}
	return nil
}

func (r *Repository) SetPresentationSyncState(ctx context.Context, id int64, state contentsync.SyncState) error {
	query := `UPDATE presentation SET sync_state = $2, updated_at = $3 WHERE presentation_id = $1`

	tag, err := r.pool.Exec(ctx, query, id, state, time.Now().UTC())
	if err != nil {
		return r.handlePostgresError("set presentation sync state", err)
	}
	if tag.RowsAffected() == 0 {
		return contentsync.ErrPresentationNotFound
	}

	return nil
}

func deletePresentationTx(ctx context.Context, tx pgx.Tx, id int64) error {
	// Slides cascade; media files and the content package are detached and
	// kept, since their blobs may be shared across revisions.
	if _, err := tx.Exec(ctx, `DELETE FROM slide WHERE presentation_id = $1`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `UPDATE media_file SET presentation_id = 0 WHERE presentation_id = $1`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `UPDATE content_package SET presentation_id = 0 WHERE presentation_id = $1`, id); err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `DELETE FROM presentation WHERE presentation_id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return contentsync.ErrPresentationNotFound
	}
	return nil
}

func (r *Repository) DeletePresentation(ctx context.Context, id int64) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		return deletePresentationTx(ctx, tx, id)
	})
}

// Slide operations

const slideColumns = `
	slide_id, presentation_id, revision, name, page_source,
	linked_slides, swipe_next, swipe_previous, created_at, updated_at`

func scanSlide(row pgx.Row) (*contentsync.Slide, error) {
	var s contentsync.Slide
	err := row.Scan(
		&s.SlideID, &s.PresentationID, &s.Revision, &s.Name, &s.PageSource,
		&s.LinkedSlides, &s.SwipeNext, &s.SwipePrevious, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *Repository) GetSlide(ctx context.Context, id int64) (*contentsync.Slide, error) {
	query := `SELECT ` + slideColumns + ` FROM slide WHERE slide_id = $1`

	s, err := scanSlide(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, contentsync.ErrSlideNotFound
		}
		return nil, err
	}

	return s, nil
}

func (r *Repository) ListSlidesByPresentation(ctx context.Context, presentationID int64) ([]*contentsync.Slide, error) {
	query := `SELECT ` + slideColumns + ` FROM slide WHERE presentation_id = $1 ORDER BY slide_id`

	rows, err := r.pool.Query(ctx, query, presentationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*contentsync.Slide
	for rows.Next() {
		s, err := scanSlide(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, s)
	}

	return result, rows.Err()
}

func (r *Repository) SaveSlide(ctx context.Context, slide *contentsync.Slide) error {
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		if err := presentationExistsTx(ctx, tx, slide.PresentationID); err != nil {
			return err
		}
		return upsertSlideTx(ctx, tx, slide)
	})
	if err != nil {
		if errors.Is(err, contentsync.ErrPresentationNotFound) {
			return err
		}
		return r.handlePostgresError("save slide", err)
	}
	return nil
}

func presentationExistsTx(ctx context.Context, tx pgx.Tx, id int64) error {
	var one int
	err := tx.QueryRow(ctx, `SELECT 1 FROM presentation WHERE presentation_id = $1 FOR UPDATE`, id).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return contentsync.ErrPresentationNotFound
	}
	return err
}

// Media file operations

const mediaFileColumns = `
	media_file_id, presentation_id, blob_id, revision, is_available_for_sharing,
	title, file_name, file_size, mime_type, created_at, updated_at`

func scanMediaFile(row pgx.Row) (*contentsync.MediaFile, error) {
	var mf contentsync.MediaFile
	err := row.Scan(
		&mf.MediaFileID, &mf.PresentationID, &mf.BlobID, &mf.Revision,
		&mf.IsAvailableForSharing, &mf.Title, &mf.FileName, &mf.FileSize,
		&mf.MimeType, &mf.CreatedAt, &mf.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &mf, nil
}

func (r *Repository) GetMediaFile(ctx context.Context, id int64) (*contentsync.MediaFile, error) {
	query := `SELECT ` + mediaFileColumns + ` FROM media_file WHERE media_file_id = $1`

	mf, err := scanMediaFile(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, contentsync.ErrMediaFileNotFound
		}
		return nil, err
	}

	return mf, nil
}

func (r *Repository) ListMediaFilesByPresentation(ctx context.Context, presentationID int64) ([]*contentsync.MediaFile, error) {
	query := `SELECT ` + mediaFileColumns + ` FROM media_file
		WHERE presentation_id = $1 ORDER BY media_file_id`

	rows, err := r.pool.Query(ctx, query, presentationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*contentsync.MediaFile
	for rows.Next() {
		mf, err := scanMediaFile(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, mf)
	}

	return result, rows.Err()
}

func (r *Repository) SaveMediaFileRevision(ctx context.Context, mf *contentsync.MediaFile, ownerState contentsync.SyncState) error {
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		if err := presentationExistsTx(ctx, tx, mf.PresentationID); err != nil {
			return err
		}

		query := `
			INSERT INTO media_file (` + mediaFileColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (media_file_id) DO UPDATE SET
				presentation_id = EXCLUDED.presentation_id, blob_id = EXCLUDED.blob_id,
				revision = EXCLUDED.revision,
				is_available_for_sharing = EXCLUDED.is_available_for_sharing,
				title = EXCLUDED.title, file_name = EXCLUDED.file_name,
				file_size = EXCLUDED.file_size, mime_type = EXCLUDED.mime_type,
				updated_at = EXCLUDED.updated_at`

		if _, err := tx.Exec(ctx, query,
			mf.MediaFileID, mf.PresentationID, mf.BlobID, mf.Revision,
			mf.IsAvailableForSharing, mf.Title, mf.FileName, mf.FileSize,
			mf.MimeType, mf.CreatedAt, mf.UpdatedAt); err != nil {
			return err
		}

		return setOwnerStateTx(ctx, tx, mf.PresentationID, ownerState)
	})
	if err != nil {
		if errors.Is(err, contentsync.ErrPresentationNotFound) {
			return err
		}
		return r.handlePostgresError("save media file revision", err)
	}
	return nil
}

func setOwnerStateTx(ctx context.Context, tx pgx.Tx, presentationID int64, state contentsync.SyncState) error {
	if state == "" {
		return nil
	}
	_, err := tx.Exec(ctx,
		`UPDATE presentation SET sync_state = $2, updated_at = $3 WHERE presentation_id = $1`,
		presentationID, state, time.Now().UTC())
	return err
}

// Content package operations

const contentPackageColumns = `
	content_package_id, presentation_id, blob_id, revision, file_size,
	mime_type, created_at, updated_at`

func scanContentPackage(row pgx.Row) (*contentsync.ContentPackage, error) {
	var cp contentsync.ContentPackage
	err := row.Scan(
		&cp.ContentPackageID, &cp.PresentationID, &cp.BlobID, &cp.Revision,
		&cp.FileSize, &cp.MimeType, &cp.CreatedAt, &cp.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &cp, nil
}

func (r *Repository) GetContentPackage(ctx context.Context, id int64) (*contentsync.ContentPackage, error) {
	query := `SELECT ` + contentPackageColumns + ` FROM content_package WHERE content_package_id = $1`

	cp, err := scanContentPackage(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, contentsync.ErrContentPackageNotFound
		}
		return nil, err
	}

	return cp, nil
}

func (r *Repository) GetContentPackageByPresentation(ctx context.Context, presentationID int64) (*contentsync.ContentPackage, error) {
	query := `SELECT ` + contentPackageColumns + ` FROM content_package WHERE presentation_id = $1`

	cp, err := scanContentPackage(r.pool.QueryRow(ctx, query, presentationID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, contentsync.ErrContentPackageNotFound
		}
		return nil, err
	}

	return cp, nil
}

func (r *Repository) SaveContentPackageRevision(ctx context.Context, cp *contentsync.ContentPackage, ownerState contentsync.SyncState) error {
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		if err := presentationExistsTx(ctx, tx, cp.PresentationID); err != nil {
			return err
		}

		query := `
			INSERT INTO content_package (` + contentPackageColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (content_package_id) DO UPDATE SET
				presentation_id = EXCLUDED.presentation_id, blob_id = EXCLUDED.blob_id,
				revision = EXCLUDED.revision, file_size = EXCLUDED.file_size,
				mime_type = EXCLUDED.mime_type, updated_at = EXCLUDED.updated_at`

		if _, err := tx.Exec(ctx, query,
			cp.ContentPackageID, cp.PresentationID, cp.BlobID, cp.Revision,
			cp.FileSize, cp.MimeType, cp.CreatedAt, cp.UpdatedAt); err != nil {
			return err
		}

		return setOwnerStateTx(ctx, tx, cp.PresentationID, ownerState)
	})
	if err != nil {
		if errors.Is(err, contentsync.ErrPresentationNotFound) {
			return err
		}
		return r.handlePostgresError("save content package revision", err)
	}
	return nil
}

// Bridge message operations

const bridgeMessageColumns = `
	guid, queue, message_order, command, data, content_id, response,
	created_at, answered_at`

func scanBridgeMessage(row pgx.Row) (*contentsync.BridgeMessage, error) {
	var m contentsync.BridgeMessage
	err := row.Scan(
		&m.GUID, &m.Queue, &m.Order, &m.Command, &m.Data, &m.ContentID,
		&m.Response, &m.CreatedAt, &m.AnsweredAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *Repository) CreateBridgeMessage(ctx context.Context, msg *contentsync.BridgeMessage) error {
	query := `
		INSERT INTO bridge_message (` + bridgeMessageColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.pool.Exec(ctx, query,
		msg.GUID, msg.Queue, msg.Order, msg.Command, msg.Data, msg.ContentID,
		msg.Response, msg.CreatedAt, msg.AnsweredAt)

	if err != nil {
		return r.handlePostgresError("create bridge message", err)
	}

	return nil
}

func (r *Repository) GetBridgeMessageByGUID(ctx context.Context, guid string) (*contentsync.BridgeMessage, error) {
	query := `SELECT ` + bridgeMessageColumns + ` FROM bridge_message WHERE guid = $1`

	m, err := scanBridgeMessage(r.pool.QueryRow(ctx, query, guid))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, contentsync.ErrMessageNotFound
		}
		return nil, err
	}

	return m, nil
}

func (r *Repository) NextPendingBridgeMessage(ctx context.Context, queue string) (*contentsync.BridgeMessage, error) {
	query := `SELECT ` + bridgeMessageColumns + ` FROM bridge_message
		WHERE queue = $1 AND response IS NULL
		ORDER BY message_order, created_at LIMIT 1`

	m, err := scanBridgeMessage(r.pool.QueryRow(ctx, query, queue))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, contentsync.ErrNoPendingMessages
		}
		return nil, err
	}

	return m, nil
}

func (r *Repository) ListPendingBridgeMessages(ctx context.Context, queue string) ([]*contentsync.BridgeMessage, error) {
	query := `SELECT ` + bridgeMessageColumns + ` FROM bridge_message
		WHERE queue = $1 AND response IS NULL
		ORDER BY message_order, created_at`

	rows, err := r.pool.Query(ctx, query, queue)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*contentsync.BridgeMessage
	for rows.Next() {
		m, err := scanBridgeMessage(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}

	return result, rows.Err()
}

func (r *Repository) LastBridgeMessageOrder(ctx context.Context, queue string) (int, bool, error) {
	var last *int
	err := r.pool.QueryRow(ctx,
		`SELECT MAX(message_order) FROM bridge_message WHERE queue = $1`, queue).Scan(&last)
	if err != nil {
		return 0, false, err
	}
	if last == nil {
		return 0, false, nil
	}
	return *last, true, nil
}

func (r *Repository) AnswerBridgeMessage(ctx context.Context, guid string, response string, answeredAt time.Time) error {
	query := `UPDATE bridge_message SET response = $2, answered_at = $3
		WHERE guid = $1 AND response IS NULL`

	tag, err := r.pool.Exec(ctx, query, guid, response, answeredAt)
	if err != nil {
		return r.handlePostgresError("answer bridge message", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetBridgeMessageByGUID(ctx, guid); err != nil {
			return err
		}
		return contentsync.ErrMessageAnswered
	}

	return nil
}

func (r *Repository) PurgeAnsweredBridgeMessages(ctx context.Context, queue string, before time.Time) (int, error) {
	query := `DELETE FROM bridge_message
		WHERE queue = $1 AND response IS NOT NULL AND answered_at < $2`

	tag, err := r.pool.Exec(ctx, query, queue, before)
	if err != nil {
		return 0, r.handlePostgresError("purge answered bridge messages", err)
	}

	return int(tag.RowsAffected()), nil
}

// Custom event operations

const customEventColumns = `
	event_id, event_key, event_value, sync, time_zone, session_id,
	user_id, content_id, created_at`

func scanCustomEvent(row pgx.Row) (*contentsync.CustomEvent, error) {
	var e contentsync.CustomEvent
	err := row.Scan(
		&e.EventID, &e.EventKey, &e.EventValue, &e.Sync, &e.TimeZone,
		&e.SessionID, &e.UserID, &e.ContentID, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *Repository) CreateCustomEvent(ctx context.Context, event *contentsync.CustomEvent) error {
	query := `
		INSERT INTO custom_event (` + customEventColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.pool.Exec(ctx, query,
		event.EventID, event.EventKey, event.EventValue, event.Sync, event.TimeZone,
		event.SessionID, event.UserID, event.ContentID, event.CreatedAt)

	if err != nil {
		return r.handlePostgresError("create custom event", err)
	}

	return nil
}

func (r *Repository) GetCustomEvent(ctx context.Context, id string) (*contentsync.CustomEvent, error) {
	query := `SELECT ` + customEventColumns + ` FROM custom_event WHERE event_id = $1`

	e, err := scanCustomEvent(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, contentsync.ErrEventNotFound
		}
		return nil, err
	}

	return e, nil
}

func (r *Repository) ListUnsyncedCustomEvents(ctx context.Context, limit int) ([]*contentsync.CustomEvent, error) {
	query := `SELECT ` + customEventColumns + ` FROM custom_event
		WHERE sync = FALSE ORDER BY created_at`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*contentsync.CustomEvent
	for rows.Next() {
		e, err := scanCustomEvent(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}

	return result, rows.Err()
}

func (r *Repository) MarkCustomEventsSynced(ctx context.Context, ids []string) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE custom_event SET sync = TRUE WHERE event_id = ANY($1) AND NOT sync`, ids)
		if err != nil {
			return err
		}
		if int(tag.RowsAffected()) == len(ids) {
			return nil
		}

		// All-or-nothing: the rollback keeps every flag untouched. Distinguish
		// a missing event from one whose flag was already set.
		var existing int
		if err := tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM custom_event WHERE event_id = ANY($1)`, ids).Scan(&existing); err != nil {
			return err
		}
		if existing != len(ids) {
			return contentsync.ErrEventNotFound
		}
		return contentsync.ErrEventAlreadySynced
	})
}

// User operations

func (r *Repository) SaveUser(ctx context.Context, user *contentsync.User) error {
	query := `
		INSERT INTO app_user (code, email, name, phone_number, birth_date, gender, location)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (code) DO UPDATE SET
			email = EXCLUDED.email, name = EXCLUDED.name,
			phone_number = EXCLUDED.phone_number, birth_date = EXCLUDED.birth_date,
			gender = EXCLUDED.gender, location = EXCLUDED.location`

	_, err := r.pool.Exec(ctx, query,
		user.Code, user.Email, user.Name, user.PhoneNumber, user.BirthDate,
		user.Gender, user.Location)

	if err != nil {
		return r.handlePostgresError("save user", err)
	}

	return nil
}

func (r *Repository) GetUser(ctx context.Context, code int64) (*contentsync.User, error) {
	query := `SELECT code, email, name, phone_number, birth_date, gender, location
		FROM app_user WHERE code = $1`

	var user contentsync.User
	err := r.pool.QueryRow(ctx, query, code).Scan(
		&user.Code, &user.Email, &user.Name, &user.PhoneNumber, &user.BirthDate,
		&user.Gender, &user.Location)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, contentsync.ErrUserNotFound
		}
		return nil, err
	}

	return &user, nil
}
