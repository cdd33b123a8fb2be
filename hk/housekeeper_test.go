package hk_test

import (
	"time"

	"github.com/ais-hpc/exstack/hk"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Housekeeper", func() {
	It("fires a registered callback once", func() {
		fired := make(chan struct{}, 1)
		hk.Reg("once", func(time.Time) time.Duration {
			fired <- struct{}{}
			return 0
		}, time.Millisecond)

		Eventually(fired, 2*time.Second).Should(Receive())
	})

	It("reschedules a recurring callback until cancelled", func() {
		var n int
		fired := make(chan struct{}, 8)
		hk.Reg("recurring", func(time.Time) time.Duration {
			n++
			fired <- struct{}{}
			if n >= 3 {
				return 0
			}
			return time.Millisecond
		}, time.Millisecond)

		Eventually(fired, 2*time.Second).Should(Receive())
		Eventually(fired, 2*time.Second).Should(Receive())
		Eventually(fired, 2*time.Second).Should(Receive())
	})

	It("does not fire an unregistered job", func() {
		fired := make(chan struct{}, 1)
		hk.Reg("cancel-me", func(time.Time) time.Duration {
			fired <- struct{}{}
			return 0
		}, 50*time.Millisecond)
		hk.Unreg("cancel-me")

		Consistently(fired, 150*time.Millisecond).ShouldNot(Receive())
	})
})
