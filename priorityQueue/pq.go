package priorityQueue

import (
	"container/heap"

	"github.com/google/netstack/tcpip/seqnum"
)

// EarlyArrivalPacket is a segment that arrived ahead of the receive cursor.
type EarlyArrivalPacket struct {
	SeqNum     seqnum.Value
	PacketData []byte
	Index      int // The index of the item in the heap
}

// A PriorityQueue implements heap.Interface and keeps the lowest SeqNum on top.
// Several packets may share a SeqNum.
type PriorityQueue []*EarlyArrivalPacket

func (pq PriorityQueue) Len() int { return len(pq) }

func (pq PriorityQueue) Less(i, j int) bool {
	return pq[i].SeqNum.LessThan(pq[j].SeqNum)
}

func (pq PriorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].Index = i
	pq[j].Index = j
}

func (pq *PriorityQueue) Push(x any) {
	n := len(*pq)
	item := x.(*EarlyArrivalPacket)
	item.Index = n
	*pq = append(*pq, item)
}

func (pq *PriorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil  // don't stop the GC from reclaiming the item eventually
	item.Index = -1 // for safety
	*pq = old[0 : n-1]
	return item
}

// Peek returns the packet with the lowest SeqNum without removing it.
func (pq PriorityQueue) Peek() (*EarlyArrivalPacket, bool) {
	if len(pq) == 0 {
		return nil, false
	}
	return pq[0], true
}

// Insert pushes a packet, keeping heap order.
func (pq *PriorityQueue) Insert(seqNum seqnum.Value, data []byte) {
	heap.Push(pq, &EarlyArrivalPacket{SeqNum: seqNum, PacketData: data})
}

// PopLowest removes and returns the packet with the lowest SeqNum.
func (pq *PriorityQueue) PopLowest() *EarlyArrivalPacket {
	return heap.Pop(pq).(*EarlyArrivalPacket)
}
