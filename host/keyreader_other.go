// Copyright 2024 The LLMP16 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !unix

package host

import "errors"

type keyReader struct{}

func startKeyReader(fd int, key func(b byte)) (*keyReader, error) {
	return nil, errors.New("keyboard mode is not supported on this platform")
}

func (kr *keyReader) Stop() {}
