// Package service runs benchmark workloads against the skip list.
//
// It owns nothing but orchestration: the list, its tracker and the
// worker goroutines are built per run and torn down when it ends.
package service
