// timer/timer.go
package timer

import (
	"container/heap"
	"sync"
	"time"
)

const defaultTick = 100 * time.Millisecond

type TimerTask struct {
	Id       int64
	Execute  time.Time
	Interval time.Duration
	Callback func()
	index    int
}

type TimerQueue []*TimerTask

func (q TimerQueue) Len() int { return len(q) }

func (q TimerQueue) Less(i, j int) bool {
	return q[i].Execute.Before(q[j].Execute)
}

func (q TimerQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *TimerQueue) Push(x interface{}) {
	n := len(*q)
	task := x.(*TimerTask)
	task.index = n
	*q = append(*q, task)
}

func (q *TimerQueue) Pop() interface{} {
	old := *q
	n := len(old)
	task := old[n-1]
	old[n-1] = nil
	task.index = -1
	*q = old[0 : n-1]
	return task
}

// TimerManager runs one-shot and periodic callbacks. Due tasks are checked
// every tick; callbacks run on their own goroutines.
type TimerManager struct {
	queue     TimerQueue
	mutex     sync.Mutex
	nextId    int64
	tick      time.Duration
	closeChan chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

func NewTimerManager() *TimerManager {
	return NewTimerManagerWithTick(defaultTick)
}

func NewTimerManagerWithTick(tick time.Duration) *TimerManager {
	if tick <= 0 {
		tick = defaultTick
	}
	manager := &TimerManager{
		queue:     make(TimerQueue, 0),
		nextId:    1,
		tick:      tick,
		closeChan: make(chan struct{}),
	}
	heap.Init(&manager.queue)
	manager.wg.Add(1)
	go manager.process()
	return manager
}

// AddTimer schedules callback after delay, then every interval if interval
// is positive. It returns the task id.
func (m *TimerManager) AddTimer(delay time.Duration, interval time.Duration, callback func()) int64 {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	task := &TimerTask{
		Id:       m.nextId,
		Execute:  time.Now().Add(delay),
		Interval: interval,
		Callback: callback,
	}
	m.nextId++

	heap.Push(&m.queue, task)
	return task.Id
}

// Stop halts the scheduler. Callbacks already started keep running.
func (m *TimerManager) Stop() {
	m.stopOnce.Do(func() {
		close(m.closeChan)
	})
	m.wg.Wait()
}

func (m *TimerManager) process() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.tick)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			for _, task := range m.due(now) {
				go task()
			}
		case <-m.closeChan:
			return
		}
	}
}

func (m *TimerManager) due(now time.Time) []func() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	var callbacks []func()
	for m.queue.Len() > 0 {
		task := m.queue[0]
		if task.Execute.After(now) {
			break
		}

		heap.Pop(&m.queue)
		callbacks = append(callbacks, task.Callback)

		if task.Interval > 0 {
			task.Execute = now.Add(task.Interval)
			heap.Push(&m.queue, task)
		}
	}
	return callbacks
}
