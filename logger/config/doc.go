/*
 * MIT License
 *
 * Copyright (c) 2025 Nicolas JUHEL
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

// Package config provides configuration structures and validation for the logger package.
//
// # Overview
//
// The config package defines the configuration model for the logger, covering the
// stdout/stderr output with its own formatting options. It provides a flexible,
// inheritance-based configuration system with validation.
//
// Key features:
//   - Stdout/stderr output with independent formatting flags
//   - Configuration inheritance from a registered default function
//   - JSON, YAML, TOML compatible structures
//
// # Inheritance
//
// Options.Options() resolves the effective configuration: when InheritDefault is
// true and a default function has been registered via RegisterDefaultFunc, the
// current, non-zero fields override the inherited defaults field by field.
//
// # Merge
//
// Options.Merge(opt) applies non-zero fields from opt onto the receiver in place,
// following the same field-by-field override rule used by Options().
package config
