package scanbook_test

import (
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func TestScanbook(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "scanbook bookmark ordering suite")
}
