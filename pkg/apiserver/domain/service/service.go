package service

import (
	"calcbridge/pkg/apiserver/config"
)

// InitServiceBean init all service instance
func InitServiceBean(c config.Config) []interface{} {
	var beans []interface{}
	if c.RunsGateway() {
		beans = append(beans, NewOperationService())
	}
	if c.RunsCalculator() {
		beans = append(beans, NewCalculatorService())
	}
	return beans
}
