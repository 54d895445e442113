// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package slug_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/taibuivan/gatekeeper/pkg/slug"
)

func TestCompact(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Alice Smith", "alicesmith"},
		{"Zoë O'Brien", "zoeobrien"},
		{"jane.doe+tag", "janedoetag"},
		{"R2-D2", "r2d2"},
		{"李雷", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, slug.Compact(tt.in), tt.in)
	}
}
