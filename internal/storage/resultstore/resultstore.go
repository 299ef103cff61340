// internal/storage/resultstore/resultstore.go
package resultstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/inklore/toonforge/internal/models"
)

// Store 持久化最终候选与评估结果（sqlite）。
// 核心循环不依赖本包：循环结束后由调用层恰好调用一次 Upsert。
type Store struct {
	db *sql.DB
}

// Record 持久化记录：实体 + 胜出候选 + 评估 + 元数据
type Record struct {
	EntityID     string                   `json:"entity_id"`
	ArtifactType models.ArtifactType      `json:"artifact_type"`
	Candidate    *models.Candidate        `json:"candidate"`
	Evaluation   *models.EvaluationResult `json:"evaluation"`
	Metadata     map[string]string        `json:"metadata,omitempty"`
	UpdatedAt    time.Time                `json:"updated_at"`
}

const schema = `
CREATE TABLE IF NOT EXISTS generation_results (
	entity_id     TEXT NOT NULL,
	artifact_type TEXT NOT NULL,
	candidate     TEXT NOT NULL,
	evaluation    TEXT NOT NULL,
	metadata      TEXT,
	overall_score REAL NOT NULL,
	pass          INTEGER NOT NULL,
	updated_at    TEXT NOT NULL,
	PRIMARY KEY (entity_id, artifact_type)
);

CREATE TABLE IF NOT EXISTS iteration_history (
	entity_id     TEXT NOT NULL,
	artifact_type TEXT NOT NULL,
	run_id        TEXT NOT NULL,
	iteration     INTEGER NOT NULL,
	overall_score REAL NOT NULL,
	pass          INTEGER NOT NULL,
	recorded_at   TEXT NOT NULL,
	PRIMARY KEY (run_id, iteration)
);
`

// Open 打开（必要时初始化）结果库
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("打开结果库失败: %w", err)
	}

	// sqlite 单写者模型
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("初始化结果库失败: %w", err)
	}

	return &Store{db: db}, nil
}

// Close 关闭结果库
func (s *Store) Close() error {
	return s.db.Close()
}

// Upsert 保存（或覆盖）指定实体的最终候选与评估
func (s *Store) Upsert(ctx context.Context, rec Record) error {
	if rec.EntityID == "" {
		return fmt.Errorf("entity id is required")
	}
	if rec.Candidate == nil || rec.Evaluation == nil {
		return fmt.Errorf("candidate and evaluation are required")
	}

	candidateJSON, err := json.Marshal(rec.Candidate)
	if err != nil {
		return fmt.Errorf("序列化候选失败: %w", err)
	}
	evaluationJSON, err := json.Marshal(rec.Evaluation)
	if err != nil {
		return fmt.Errorf("序列化评估失败: %w", err)
	}
	metadataJSON, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("序列化元数据失败: %w", err)
	}

	updatedAt := rec.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	pass := 0
	if rec.Evaluation.Pass {
		pass = 1
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO generation_results
			(entity_id, artifact_type, candidate, evaluation, metadata, overall_score, pass, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(entity_id, artifact_type) DO UPDATE SET
			candidate = excluded.candidate,
			evaluation = excluded.evaluation,
			metadata = excluded.metadata,
			overall_score = excluded.overall_score,
			pass = excluded.pass,
			updated_at = excluded.updated_at`,
		rec.EntityID, string(rec.ArtifactType), string(candidateJSON), string(evaluationJSON),
		string(metadataJSON), rec.Evaluation.OverallScore, pass, updatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("保存结果失败: %w", err)
	}

	return nil
}

// Get 读取指定实体的最终候选与评估
func (s *Store) Get(ctx context.Context, entityID string, artifactType models.ArtifactType) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT candidate, evaluation, metadata, updated_at
		FROM generation_results
		WHERE entity_id = ? AND artifact_type = ?`,
		entityID, string(artifactType))

	var candidateJSON, evaluationJSON, metadataJSON, updatedAt string
	if err := row.Scan(&candidateJSON, &evaluationJSON, &metadataJSON, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("读取结果失败: %w", err)
	}

	rec := &Record{
		EntityID:     entityID,
		ArtifactType: artifactType,
	}
	if err := json.Unmarshal([]byte(candidateJSON), &rec.Candidate); err != nil {
		return nil, fmt.Errorf("解析候选失败: %w", err)
	}
	if err := json.Unmarshal([]byte(evaluationJSON), &rec.Evaluation); err != nil {
		return nil, fmt.Errorf("解析评估失败: %w", err)
	}
	if metadataJSON != "" && metadataJSON != "null" {
		if err := json.Unmarshal([]byte(metadataJSON), &rec.Metadata); err != nil {
			return nil, fmt.Errorf("解析元数据失败: %w", err)
		}
	}
	if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		rec.UpdatedAt = t
	}

	return rec, nil
}

// SaveHistory 保存一次循环的迭代历史（遥测，可选）
func (s *Store) SaveHistory(ctx context.Context, entityID string, artifactType models.ArtifactType, runID string, history []models.IterationRecord) error {
	if runID == "" {
		return fmt.Errorf("run id is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启事务失败: %w", err)
	}
	defer tx.Rollback()

	for _, rec := range history {
		pass := 0
		if rec.Pass {
			pass = 1
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO iteration_history
				(entity_id, artifact_type, run_id, iteration, overall_score, pass, recorded_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			entityID, string(artifactType), runID, rec.Index, rec.OverallScore, pass,
			rec.Timestamp.Format(time.RFC3339Nano)); err != nil {
			return fmt.Errorf("保存迭代记录失败: %w", err)
		}
	}

	return tx.Commit()
}

// History 按迭代次序读取一次循环的历史记录
func (s *Store) History(ctx context.Context, runID string) ([]models.IterationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT iteration, overall_score, pass, recorded_at
		FROM iteration_history
		WHERE run_id = ?
		ORDER BY iteration ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("读取迭代历史失败: %w", err)
	}
	defer rows.Close()

	var out []models.IterationRecord
	for rows.Next() {
		var rec models.IterationRecord
		var pass int
		var recordedAt string
		if err := rows.Scan(&rec.Index, &rec.OverallScore, &pass, &recordedAt); err != nil {
			return nil, fmt.Errorf("解析迭代记录失败: %w", err)
		}
		rec.Pass = pass == 1
		if t, err := time.Parse(time.RFC3339Nano, recordedAt); err == nil {
			rec.Timestamp = t
		}
		out = append(out, rec)
	}

	return out, rows.Err()
}
