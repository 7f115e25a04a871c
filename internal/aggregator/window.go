package aggregator

import "boiler-telemetry/internal/models"

// DefaultWindowSize 图表保留的最大点数
const DefaultWindowSize = 50

// RollingWindow 固定容量的最近读数窗口（环形缓冲，FIFO 淘汰）
// 假定调用方按 ObservedAt 非递减顺序追加，乱序输入不会重排。
// 非并发安全：每个设备会话只有一个写入路径。
type RollingWindow struct {
	buf   []models.DerivedReading
	start int
	size  int
	// 最近一次被淘汰读数的累计流量
	evictedFlowL float64
}

// NewRollingWindow 创建容量为 n 的窗口
func NewRollingWindow(n int) *RollingWindow {
	if n <= 0 {
		n = DefaultWindowSize
	}
	return &RollingWindow{buf: make([]models.DerivedReading, n)}
}

// Append 追加读数，超出容量时淘汰最旧的一条
func (w *RollingWindow) Append(r models.DerivedReading) {
	capacity := len(w.buf)
	if w.size < capacity {
		w.buf[(w.start+w.size)%capacity] = r
		w.size++
		return
	}
	w.evictedFlowL = w.buf[w.start].CumulativeFlowL
	w.buf[w.start] = r
	w.start = (w.start + 1) % capacity
}

// Snapshot 按时间顺序（旧 -> 新）返回副本
func (w *RollingWindow) Snapshot() []models.DerivedReading {
	out := make([]models.DerivedReading, w.size)
	for i := 0; i < w.size; i++ {
		out[i] = w.buf[(w.start+i)%len(w.buf)]
	}
	return out
}

// Last 返回最新一条读数
func (w *RollingWindow) Last() (models.DerivedReading, bool) {
	if w.size == 0 {
		return models.DerivedReading{}, false
	}
	return w.buf[(w.start+w.size-1)%len(w.buf)], true
}

// FlowTotalL 窗口内样本的累计流量（升），即最新累计值减去已淘汰部分
func (w *RollingWindow) FlowTotalL() float64 {
	last, ok := w.Last()
	if !ok {
		return 0
	}
	return last.CumulativeFlowL - w.evictedFlowL
}

func (w *RollingWindow) Len() int { return w.size }

func (w *RollingWindow) Cap() int { return len(w.buf) }

// Reset 清空窗口（切换设备时使用）
func (w *RollingWindow) Reset() {
	for i := range w.buf {
		w.buf[i] = models.DerivedReading{}
	}
	w.start = 0
	w.size = 0
	w.evictedFlowL = 0
}
