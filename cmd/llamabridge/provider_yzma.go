//go:build yzma

package main

import _ "github.com/samcharles93/llamabridge/internal/llm/yzma"
