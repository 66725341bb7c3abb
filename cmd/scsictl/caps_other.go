//go:build !linux

package main

import "github.com/sirupsen/logrus"

func checkCaps(log logrus.FieldLogger) {}
