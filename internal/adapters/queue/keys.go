package queue

import (
	"fmt"
)

func pendingPrefix(queue string) []byte {
	return []byte(fmt.Sprintf("queue:%s:pending:", queue))
}

func pendingKey(queue string, sequence uint64) []byte {
	return []byte(fmt.Sprintf("queue:%s:pending:%020d", queue, sequence))
}

func activePrefix(queue string) []byte {
	return []byte(fmt.Sprintf("queue:%s:active:", queue))
}

func activeKey(queue, claimID string) []byte {
	return []byte(fmt.Sprintf("queue:%s:active:%s", queue, claimID))
}

func jobIndexKey(queue, jobID string) []byte {
	return []byte(fmt.Sprintf("queue:%s:job:%s", queue, jobID))
}

func sequenceKey(queue string) []byte {
	return []byte(fmt.Sprintf("queue:%s:seq", queue))
}
