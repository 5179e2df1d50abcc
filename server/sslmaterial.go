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

package server

import (
	"os"
	"strings"

	certs "github.com/nabbar/polyserve/certificates/certs"
)

const pemPrefix = "-----"

// resolveMaterial returns val's bytes: if val looks like a literal PEM
// block (begins with "-----"), it is used as-is; otherwise it is treated
// as a filesystem path and read. The teacher's certs package itself only
// discriminates Pair/Chain/File shapes at the config-struct level, so this
// prefix check is the front door that lets SSLConfig.Key/Cert/CA carry
// either shape through a single string field.
func resolveMaterial(val string) ([]byte, error) {
	if strings.HasPrefix(val, pemPrefix) {
		return []byte(val), nil
	}
	return os.ReadFile(val)
}

// BuildCertPair resolves cfg's Cert/Key fields (literal PEM or filesystem
// path) into a certs.ConfigPair ready for certs.ParsePair.
func BuildCertPair(cfg SSLConfig) (certs.ConfigPair, error) {
	cert, err := resolveMaterial(cfg.Cert)
	if err != nil {
		return certs.ConfigPair{}, ErrorSSLMaterialMissing.Error(err)
	}

	key, err := resolveMaterial(cfg.Key)
	if err != nil {
		return certs.ConfigPair{}, ErrorSSLMaterialMissing.Error(err)
	}

	return certs.ConfigPair{
		Pub: string(cert),
		Key: string(key),
	}, nil
}
