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

package coreutil

import (
	"context"
	"time"
)

// Operation is any function bounded by ExecuteWithTimeout.
type Operation func(ctx context.Context) (interface{}, error)

// ExecuteWithTimeout races op against the duration ms. On completion the
// timer is cleared and op's result is returned. On timeout, op's context is
// canceled and an ErrorTimeoutExceeded naming the operation is returned.
// Exactly one of (result, timeout-error) is produced, never both.
func ExecuteWithTimeout(ctx context.Context, name string, ms time.Duration, op Operation) (interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, ms)
	defer cancel()

	type outcome struct {
		val interface{}
		err error
	}

	done := make(chan outcome, 1)

	go func() {
		v, e := op(ctx)
		done <- outcome{val: v, err: e}
	}()

	select {
	case o := <-done:
		return o.val, o.err
	case <-ctx.Done():
		return nil, ErrorTimeoutExceeded.Error(contextErr(ctx, name))
	}
}

func contextErr(ctx context.Context, name string) error {
	return &timeoutError{name: name, cause: ctx.Err()}
}

type timeoutError struct {
	name  string
	cause error
}

func (e *timeoutError) Error() string {
	return e.name + ": " + e.cause.Error()
}
