// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package bufpool holds pools of constant-sized scratch arrays, to reduce
// allocation overhead in the FFT correlation and pre-registration inner loops.
package bufpool

import (
	"runtime"
	"sync"
)

var poolFloat32 = struct {
	sync.RWMutex
	m map[int]*sync.Pool
}{m: make(map[int]*sync.Pool)}

var poolComplex128 = struct {
	sync.RWMutex
	m map[int]*sync.Pool
}{m: make(map[int]*sync.Pool)}

func getSizedPoolFloat32(size int) *sync.Pool {
	poolFloat32.RLock()
	pool := poolFloat32.m[size]
	poolFloat32.RUnlock()
	if pool == nil {
		pool = &sync.Pool{New: func() interface{} { return make([]float32, size) }}
		poolFloat32.Lock()
		poolFloat32.m[size] = pool
		poolFloat32.Unlock()
	}
	return pool
}

// GetFloat32 retrieves a zeroed []float32 of the given length from the pool.
func GetFloat32(size int) []float32 {
	buf := getSizedPoolFloat32(size).Get().([]float32)
	for i := range buf {
		buf[i] = 0
	}
	return buf
}

// PutFloat32 returns a []float32 to the pool for reuse.
func PutFloat32(buf []float32) {
	getSizedPoolFloat32(cap(buf)).Put(buf[:cap(buf)])
}

func getSizedPoolComplex128(size int) *sync.Pool {
	poolComplex128.RLock()
	pool := poolComplex128.m[size]
	poolComplex128.RUnlock()
	if pool == nil {
		pool = &sync.Pool{New: func() interface{} { return make([]complex128, size) }}
		poolComplex128.Lock()
		poolComplex128.m[size] = pool
		poolComplex128.Unlock()
	}
	return pool
}

// GetComplex128 retrieves a zeroed []complex128 of the given length from the pool.
func GetComplex128(size int) []complex128 {
	buf := getSizedPoolComplex128(size).Get().([]complex128)
	for i := range buf {
		buf[i] = 0
	}
	return buf
}

// PutComplex128 returns a []complex128 to the pool for reuse.
func PutComplex128(buf []complex128) {
	getSizedPoolComplex128(cap(buf)).Put(buf[:cap(buf)])
}

// Clear drops all pooled buffers and triggers a garbage collection. Useful
// between pipeline stages that change working-set sizes drastically.
func Clear() {
	poolFloat32.Lock()
	poolFloat32.m = make(map[int]*sync.Pool)
	poolFloat32.Unlock()

	poolComplex128.Lock()
	poolComplex128.m = make(map[int]*sync.Pool)
	poolComplex128.Unlock()

	runtime.GC()
}
