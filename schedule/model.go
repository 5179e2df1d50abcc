/*
 * MIT License
 *
 * Copyright (c) 2024 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package schedule

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"
)

type entry struct {
	task  Task
	stats Stats
	last  time.Time
}

type scheduler struct {
	ctx    context.Context
	cancel context.CancelFunc
	ticker *time.Ticker
	period time.Duration

	mu    sync.Mutex
	tasks map[string]*entry

	destroyed bool
}

func (s *scheduler) Register(t Task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return
	}

	e, ok := s.tasks[t.Name]
	if !ok {
		s.tasks[t.Name] = &entry{task: t}
		return
	}

	e.task = t
}

func (s *scheduler) Unregister(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, name)
}

func (s *scheduler) Enable(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.tasks[name]; ok {
		e.task.Enabled = true
	}
}

func (s *scheduler) Disable(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.tasks[name]; ok {
		e.task.Enabled = false
	}
}

func (s *scheduler) Stats(name string) (Stats, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.tasks[name]
	if !ok {
		return Stats{}, false
	}

	return e.stats, true
}

func (s *scheduler) Destroy() {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	s.destroyed = true
	s.tasks = make(map[string]*entry)
	s.mu.Unlock()

	s.ticker.Stop()
	s.cancel()
}

func (s *scheduler) loop() {
	defer s.ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case now := <-s.ticker.C:
			s.tick(now)
		}
	}
}

// tick selects due, enabled tasks, groups them by ascending priority, and
// runs each group to completion (success and failure alike) before moving
// to the next. Registry mutation is safe between groups since the mutex is
// only held while snapshotting and writing back statistics.
func (s *scheduler) tick(now time.Time) {
	groups := s.selectDue(now)

	for _, g := range groups {
		s.runGroup(g)
	}
}

func (s *scheduler) selectDue(now time.Time) [][]*entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	due := make([]*entry, 0, len(s.tasks))
	for _, e := range s.tasks {
		if !e.task.Enabled {
			continue
		}
		if now.Sub(e.last) >= e.task.Interval {
			due = append(due, e)
		}
	}

	sort.Slice(due, func(i, j int) bool {
		return due[i].task.Priority < due[j].task.Priority
	})

	var groups [][]*entry
	var cur []*entry
	curPriority := 0

	for i, e := range due {
		if i == 0 {
			curPriority = e.task.Priority
		}
		if e.task.Priority != curPriority {
			groups = append(groups, cur)
			cur = nil
			curPriority = e.task.Priority
		}
		cur = append(cur, e)
	}
	if len(cur) > 0 {
		groups = append(groups, cur)
	}

	return groups
}

func (s *scheduler) runGroup(group []*entry) {
	var wg sync.WaitGroup
	wg.Add(len(group))

	for _, e := range group {
		go func(e *entry) {
			defer wg.Done()
			s.runOne(e)
		}(e)
	}

	wg.Wait()
}

func (s *scheduler) runOne(e *entry) {
	start := time.Now()
	err := safeRun(e.task.Run, s.ctx)
	dur := time.Since(start)

	s.mu.Lock()
	e.last = start
	e.stats.Runs++
	e.stats.LastRunAt = start
	e.stats.LastDur = dur
	if e.stats.AvgDur == 0 {
		e.stats.AvgDur = dur
	} else {
		e.stats.AvgDur = time.Duration(float64(e.stats.AvgDur)*0.9 + float64(dur)*0.1)
	}
	if err != nil {
		e.stats.Failures++
	}
	handler := e.task.OnError
	s.mu.Unlock()

	if err != nil && handler != nil {
		safeHandle(handler, err)
	}
}

func safeRun(fn TaskFunc, ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(r)
		}
	}()
	return fn(ctx)
}

func safeHandle(fn func(err error), err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("schedule: OnError handler panicked: %v", r)
		}
	}()
	fn(err)
}
