// Package ratomic wraps sync/atomic in the shape cmn/atomic takes in the
// teacher repo (tcb.go, tcobjs.go, lru.go all pass atomic.Int64/Int32/Bool
// values by pointer and call .Load()/.Store()/.Add()/.CAS()).
package ratomic

import "sync/atomic"

type Int64 struct{ v atomic.Int64 }

func (i *Int64) Load() int64          { return i.v.Load() }
func (i *Int64) Store(n int64)        { i.v.Store(n) }
func (i *Int64) Add(n int64) int64    { return i.v.Add(n) }
func (i *Int64) CAS(old, new int64) bool { return i.v.CompareAndSwap(old, new) }

type Int32 struct{ v atomic.Int32 }

func (i *Int32) Load() int32          { return i.v.Load() }
func (i *Int32) Store(n int32)        { i.v.Store(n) }
func (i *Int32) Add(n int32) int32    { return i.v.Add(n) }
func (i *Int32) CAS(old, new int32) bool { return i.v.CompareAndSwap(old, new) }

type Bool struct{ v atomic.Bool }

func (b *Bool) Load() bool     { return b.v.Load() }
func (b *Bool) Store(v bool)   { b.v.Store(v) }
func (b *Bool) CAS(old, new bool) bool { return b.v.CompareAndSwap(old, new) }

type Uint64 struct{ v atomic.Uint64 }

func (u *Uint64) Load() uint64         { return u.v.Load() }
func (u *Uint64) Store(n uint64)       { u.v.Store(n) }
func (u *Uint64) Add(n uint64) uint64  { return u.v.Add(n) }
