// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package sets

import (
	"cmp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSet(t *testing.T) {
	// Sets are created empty.
	s := Make[int](10)
	assert.Len(t, s, 0)

	s.Insert(3, 7)
	assert.Len(t, s, 2)
	assert.True(t, s.Has(3))
	assert.True(t, s.Has(7))
	assert.False(t, s.Has(5))

	s2 := MakeWith(5, 7)
	s3 := s.Sub(s2)
	assert.Len(t, s3, 1)
	assert.True(t, s3.Has(3))

	s.Delete(7, 1000)
	assert.Len(t, s, 1)
	assert.True(t, s.Equal(s3))
	assert.False(t, s.Equal(s2))
}

func TestInsertNew(t *testing.T) {
	s := Make[string]()
	assert.True(t, s.InsertNew("a"))
	assert.False(t, s.InsertNew("a"))
	assert.Len(t, s, 1)
}

func TestUnionIntersect(t *testing.T) {
	a := MakeWith(1, 2, 3)
	b := MakeWith(3, 4)
	c := MakeWith(9)

	u := a.Union(b, c)
	assert.Equal(t, []int{1, 2, 3, 4, 9}, u.SortedFunc(cmp.Compare[int]))

	inter := a.Intersect(b)
	assert.True(t, inter.Equal(MakeWith(3)))
	assert.False(t, a.Disjoint(b))
	assert.True(t, a.Disjoint(c))
	assert.True(t, Make[int]().Disjoint(a))
}
