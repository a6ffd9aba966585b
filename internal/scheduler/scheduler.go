package scheduler

import (
	"log"
	"os"
	"time"

	"github.com/robfig/cron/v3"
)

type Scheduler struct {
	cron *cron.Cron
	job  func()
	// 启动后首次执行的延迟，0 表示不补跑
	startupDelay time.Duration
}

// New spec 为标准 5 段 cron 表达式；重叠的触发会被跳过
func New(spec string, job func(), startupDelay time.Duration) (*Scheduler, error) {
	logger := cron.VerbosePrintfLogger(log.New(os.Stderr, "cron: ", log.LstdFlags))
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	s := &Scheduler{
		cron:         c,
		job:          job,
		startupDelay: startupDelay,
	}

	if _, err := c.AddFunc(spec, s.runOnce); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	if s.startupDelay > 0 {
		// 延迟执行首轮，避免与服务启动争抢资源
		time.AfterFunc(s.startupDelay, func() {
			go s.runOnce()
		})
	}
}

// Stop 停止调度并等待正在执行的任务结束
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Next 下一次计划执行时间，未启动时为零值
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (s *Scheduler) runOnce() {
	start := time.Now()
	log.Println("start scheduled job...")
	s.job()
	log.Printf("scheduled job done in %s", time.Since(start).Round(time.Millisecond))
}
