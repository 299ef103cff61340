// internal/services/progress_service_test.go
package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerTerminalStateIsFinal(t *testing.T) {
	svc := NewProgressService()

	t.Run("fail after complete keeps completed", func(t *testing.T) {
		tracker := svc.CreateTracker("task-done")
		tracker.Complete("全部通过")

		// 重复终结不改状态也不重复关闭 Done
		tracker.Fail("迟到的错误")
		tracker.Complete("再次完成")

		snap := tracker.Snapshot()
		assert.Equal(t, "completed", snap.Status)
		assert.Equal(t, 100, snap.Progress)
	})

	t.Run("complete after fail keeps failed", func(t *testing.T) {
		tracker := svc.CreateTracker("task-failed")
		tracker.Fail("参数非法")
		tracker.Fail("参数非法")
		tracker.Complete("不该生效")

		assert.Equal(t, "failed", tracker.Snapshot().Status)
	})
}

func TestTrackerFailNotifiesSubscribers(t *testing.T) {
	svc := NewProgressService()
	tracker := svc.CreateTracker("task-sub")

	ch := tracker.Subscribe()
	defer tracker.Unsubscribe(ch)

	// 订阅时立即收到当前状态
	first := <-ch
	require.Equal(t, "running", first.Status)

	tracker.Fail("循环中止")

	update := <-ch
	assert.Equal(t, "failed", update.Status)

	select {
	case <-tracker.Done:
	default:
		t.Fatal("Done should be closed once the task fails")
	}
}
