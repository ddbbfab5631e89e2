package api

import (
	"github.com/gin-gonic/gin"
)

var (
	versionPrefix = "/api/v1"
	legacyPrefix  = "/api"
)

// GetAPIPrefix return the prefix of the api route path
func GetAPIPrefix() []string {
	return []string{versionPrefix, legacyPrefix}
}

// The Interface API should define the http route
type Interface interface {
	RegisterRoutes(group *gin.RouterGroup)
}

var registeredAPI []Interface

// RegisterAPI register API handler
func RegisterAPI(ws Interface) {
	registeredAPI = append(registeredAPI, ws)
}

// GetRegisteredAPI return all API handlers
func GetRegisteredAPI() []Interface {
	return registeredAPI
}

// InitAPIBean builds fresh API handlers for one server and makes them the registered set.
// The arithmetic routes exist only where a correlator runs.
func InitAPIBean(gateway bool) []interface{} {
	registeredAPI = nil
	RegisterAPI(NewHealth())
	if gateway {
		RegisterAPI(NewCalculator())
	}
	var beans []interface{}
	for i := range registeredAPI {
		beans = append(beans, registeredAPI[i])
	}
	return beans
}
