package footstate_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestFootstate(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Footstate Suite")
}
