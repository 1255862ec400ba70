package redis

import (
	"sync"

	"go.uber.org/zap"
)

// taskPool SubmitTask 使用的 worker pool，任务 panic 不影响后续任务
type taskPool struct {
	name     string
	taskChan chan func()
	wg       sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func newTaskPool(name string, workerNum, taskChanSize int) *taskPool {
	p := &taskPool{
		name:     name,
		taskChan: make(chan func(), taskChanSize),
	}
	for i := 0; i < workerNum; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for task := range p.taskChan {
				p.run(task)
			}
		}()
	}
	zap.L().Info("cache workers started", zap.String("store", name), zap.Int("workers", workerNum), zap.Int("buffer", taskChanSize))
	return p
}

func (p *taskPool) run(task func()) {
	defer func() {
		if rec := recover(); rec != nil {
			zap.L().Error("cache worker panic", zap.String("store", p.name), zap.Any("recover", rec))
		}
	}()
	if task != nil {
		task()
	}
}

// submit 队列满或已关闭时同步执行
func (p *taskPool) submit(action func()) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.run(action)
		return
	}
	select {
	case p.taskChan <- action:
	default:
		zap.L().Warn("cache task channel full, executing synchronously", zap.String("store", p.name))
		p.run(action)
	}
}

// stop 排空队列并等待 worker 退出，重复调用返回 false
func (p *taskPool) stop() bool {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false
	}
	p.closed = true
	close(p.taskChan)
	p.mu.Unlock()

	p.wg.Wait()
	return true
}
