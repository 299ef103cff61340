// internal/services/loop_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/inklore/toonforge/internal/apperrors"
	"github.com/inklore/toonforge/internal/models"
	"github.com/inklore/toonforge/internal/utils"
)

// CandidateGenerator 产出候选稿；feedback 在首轮为 nil
type CandidateGenerator interface {
	Generate(ctx context.Context, spec *models.GenerationSpec, nctx *models.NarrativeContext, feedback *models.Feedback) (*models.Candidate, error)
}

// CandidateEvaluator 对候选稿按固定量表打分
type CandidateEvaluator interface {
	Evaluate(ctx context.Context, candidate *models.Candidate, nctx *models.NarrativeContext, threshold float64, mode models.EvalMode) (*models.EvaluationResult, error)
}

// loopState 改进循环的显式状态
type loopState int

const (
	stateInit loopState = iota
	stateGenerating
	stateEvaluating
	stateDeciding
	stateDone
	stateAborted
)

// LoopService 改进循环控制器：生成→评估→决策，直到达标或预算耗尽。
//
// 两套预算互不挪用：质量迭代预算（MaxIterations）只被完成的
// 生成+评估周期消耗；基础设施重试预算（InfraRetries）只被
// 调用失败、超时、输出无法解析这类故障消耗。预算耗尽即中止，
// 不返回部分结果。
type LoopService struct {
	Generator CandidateGenerator
	Evaluator CandidateEvaluator

	// InfraRetries 整个循环共享的基础设施重试预算
	InfraRetries int
	// CallTimeout 单次生成或评估调用的超时，超时按基础设施故障处理
	CallTimeout time.Duration

	metrics *utils.LoopMetrics
	logger  *utils.Logger
}

// NewLoopService 创建改进循环服务
func NewLoopService(generator CandidateGenerator, evaluator CandidateEvaluator, infraRetries int, callTimeout time.Duration) *LoopService {
	if infraRetries < 0 {
		infraRetries = 0
	}
	if callTimeout <= 0 {
		callTimeout = 120 * time.Second
	}
	return &LoopService{
		Generator:    generator,
		Evaluator:    evaluator,
		InfraRetries: infraRetries,
		CallTimeout:  callTimeout,
		metrics:      utils.NewLoopMetrics(),
		logger:       utils.GetLogger(),
	}
}

// Run 执行一次完整的改进循环。tracker 可以为 nil。
//
// MaxIterations 是首轮之外的重试预算：0 表示恰好生成评估一次。
// 中止时返回 (nil, error)，绝不返回部分 LoopResult。
func (s *LoopService) Run(ctx context.Context, spec *models.GenerationSpec, nctx *models.NarrativeContext, opts models.LoopOptions, tracker *ProgressTracker) (*models.LoopResult, error) {
	// INIT：非法输入在任何预算被消耗之前拒绝，tracker 同步进入失败态
	if err := validateRunInputs(spec, opts, nctx); err != nil {
		if tracker != nil {
			tracker.Fail(err.Error())
		}
		return nil, err
	}

	var (
		state       = stateGenerating
		iteration   = 0
		infraBudget = s.InfraRetries
		feedback    *models.Feedback
		candidate   *models.Candidate
		evaluation  *models.EvaluationResult
		history     []models.IterationRecord
		termination models.TerminationReason
		abortErr    error

		bestCandidate  *models.Candidate
		bestEvaluation *models.EvaluationResult
		bestScore      float64
	)

	totalSteps := (opts.MaxIterations + 1) * 2

	for state != stateDone && state != stateAborted {
		switch state {
		case stateGenerating:
			s.reportPhase(tracker, iteration, "generating", iteration*2, totalSteps,
				fmt.Sprintf("生成第 %d 稿...", iteration+1))

			c, err := s.withInfraRetry(ctx, &infraBudget, "generation", func(callCtx context.Context) (interface{}, error) {
				return s.Generator.Generate(callCtx, spec, nctx, feedback)
			})
			if err != nil {
				abortErr = err
				state = stateAborted
				continue
			}
			candidate = c.(*models.Candidate)
			state = stateEvaluating

		case stateEvaluating:
			s.reportPhase(tracker, iteration, "evaluating", iteration*2+1, totalSteps,
				fmt.Sprintf("评估第 %d 稿...", iteration+1))

			e, err := s.withInfraRetry(ctx, &infraBudget, "evaluation", func(callCtx context.Context) (interface{}, error) {
				return s.Evaluator.Evaluate(callCtx, candidate, nctx, opts.PassThreshold, opts.Mode)
			})
			if err != nil {
				abortErr = err
				state = stateAborted
				continue
			}
			evaluation = e.(*models.EvaluationResult)
			state = stateDeciding

		case stateDeciding:
			history = append(history, models.IterationRecord{
				Index:        iteration,
				OverallScore: evaluation.OverallScore,
				Pass:         evaluation.Pass,
				Timestamp:    evaluation.EvaluatedAt,
			})
			s.metrics.RecordIteration(string(spec.ArtifactType), evaluation.OverallScore, evaluation.Pass)

			// 并列时保留更早的一稿
			if bestCandidate == nil || evaluation.OverallScore > bestScore {
				bestCandidate = candidate
				bestEvaluation = evaluation
				bestScore = evaluation.OverallScore
			}

			switch {
			case evaluation.Pass:
				// 达标稿即最终稿，即使更早有更高分
				bestCandidate = candidate
				bestEvaluation = evaluation
				termination = models.TerminationPassed
				state = stateDone
			case iteration >= opts.MaxIterations:
				termination = models.TerminationExhausted
				state = stateDone
			default:
				feedback = models.FeedbackFrom(evaluation)
				iteration++
				state = stateGenerating
			}
		}
	}

	if state == stateAborted {
		s.metrics.RecordLoopOutcome(string(spec.ArtifactType), string(models.TerminationAborted), len(history))
		if tracker != nil {
			tracker.Fail(abortErr.Error())
		}
		s.logger.Error("improvement loop aborted", map[string]interface{}{
			"entity_id":  spec.SourceEntityID,
			"artifact":   string(spec.ArtifactType),
			"iterations": len(history),
			"error":      abortErr.Error(),
		})
		return nil, abortErr
	}

	result := &models.LoopResult{
		FinalCandidate:    bestCandidate,
		FinalEvaluation:   bestEvaluation,
		IterationCount:    iteration,
		History:           history,
		TerminationReason: termination,
	}

	s.metrics.RecordLoopOutcome(string(spec.ArtifactType), string(termination), len(history))
	if tracker != nil {
		tracker.Complete(fmt.Sprintf("循环结束: %s，最终得分 %.2f", termination, bestEvaluation.OverallScore))
	}
	s.logger.Info("improvement loop finished", map[string]interface{}{
		"entity_id":  spec.SourceEntityID,
		"artifact":   string(spec.ArtifactType),
		"reason":     string(termination),
		"iterations": result.IterationCount,
		"score":      bestEvaluation.OverallScore,
	})

	return result, nil
}

func validateRunInputs(spec *models.GenerationSpec, opts models.LoopOptions, nctx *models.NarrativeContext) error {
	if spec == nil {
		return apperrors.NewValidationError("generation spec is nil", nil)
	}
	if err := spec.Validate(); err != nil {
		return apperrors.NewValidationError("invalid generation spec", err)
	}
	if err := opts.Validate(spec.ArtifactType); err != nil {
		return apperrors.NewValidationError("invalid loop options", err)
	}
	if nctx != nil {
		if err := nctx.Validate(); err != nil {
			return apperrors.NewValidationError("invalid narrative context", err)
		}
	}
	return nil
}

// withInfraRetry 在单次调用超时下执行 fn，基础设施故障时消耗重试预算。
// 上层 ctx 被取消时立即放弃，不消耗预算。
func (s *LoopService) withInfraRetry(ctx context.Context, budget *int, component string, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, apperrors.NewTimeoutError("loop cancelled", err)
		}

		callCtx, cancel := context.WithTimeout(ctx, s.CallTimeout)
		out, err := fn(callCtx)
		cancel()

		if err == nil {
			return out, nil
		}

		// 单次调用超时归类为基础设施故障；上层取消则直接中止
		if errors.Is(err, context.DeadlineExceeded) {
			if ctx.Err() != nil {
				return nil, apperrors.NewTimeoutError("loop cancelled", ctx.Err())
			}
			err = apperrors.NewTimeoutError(component+" call timed out", err)
		}
		if ctx.Err() != nil {
			return nil, err
		}

		if !apperrors.IsInfrastructureFailure(err) {
			return nil, err
		}

		if *budget <= 0 {
			return nil, apperrors.WrapError(err,
				fmt.Sprintf("%s failed and the infrastructure retry budget is exhausted", component),
				apperrors.ErrorTypeError)
		}
		*budget--
		s.metrics.RecordError(component, "loop")
		s.logger.Warn("infrastructure failure, retrying", map[string]interface{}{
			"component":         component,
			"remaining_retries": *budget,
			"error":             err.Error(),
		})
	}
}

func (s *LoopService) reportPhase(tracker *ProgressTracker, iteration int, phase string, step, totalSteps int, message string) {
	if tracker == nil {
		return
	}
	progress := 0
	if totalSteps > 0 {
		progress = step * 95 / totalSteps
	}
	tracker.UpdatePhase(iteration, phase, progress, message)
}
