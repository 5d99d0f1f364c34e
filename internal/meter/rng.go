package meter

import (
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RNG 模拟器随机源
// math/rand的默认源不是并发安全的，这里统一加锁
type RNG struct {
	mu   sync.Mutex
	rand *rand.Rand
}

// NewRNG 创建随机源，seed为0时取当前时间
func NewRNG(seed int64) *RNG {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &RNG{rand: rand.New(rand.NewSource(seed))}
}

// UUID 生成UUIDv4字符串
func (r *RNG) UUID() string {
	return uuid.NewString()
}

// IntBetween 返回[min,max]区间内的整数
func (r *RNG) IntBetween(min, max int) int {
	if max <= min {
		return min
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return min + r.rand.Intn(max-min+1)
}

// Float64Between 返回[min,max)区间内的浮点数
func (r *RNG) Float64Between(min, max float64) float64 {
	if max <= min {
		return min
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return min + r.rand.Float64()*(max-min)
}

// Fluctuate 围绕上一个值做有界波动
// 步长不超过maxStep，结果收敛在[min,max]内
func (r *RNG) Fluctuate(previous, min, max, maxStep float64) float64 {
	if max <= min {
		return min
	}
	if previous < min {
		previous = min
	}
	if previous > max {
		previous = max
	}

	r.mu.Lock()
	step := (r.rand.Float64()*2 - 1) * maxStep
	r.mu.Unlock()

	next := previous + step
	if next < min {
		next = min
	}
	if next > max {
		next = max
	}
	return next
}
