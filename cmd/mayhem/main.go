package main

import (
	"github.com/sirupsen/logrus"
	"k8s.io/klog/v2"
)

func init() {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:          true,
		DisableSorting:         true,
		DisableLevelTruncation: true,
	})
	// client-go logs through klog, route it into the same stream
	klog.SetOutput(logrus.StandardLogger().Writer())
}

func main() {
	Execute()
}
