package identity

const v3ProjectTokenBody = `{
  "token": {
    "methods": ["password"],
    "expires_at": "2031-03-06T15:19:27.000000Z",
    "issued_at": "2031-03-06T14:19:27.000000Z",
    "user": {
      "id": "u-1",
      "name": "gabriel",
      "domain": {"id": "d-1", "name": "domain"}
    },
    "project": {
      "id": "p-1",
      "name": "tenant_one",
      "domain": {"id": "d-1", "name": "domain"}
    },
    "roles": [{"id": "r-1", "name": "Member"}, {"id": "r-2", "name": "admin"}],
    "catalog": [
      {
        "type": "identity",
        "id": "s-1",
        "endpoints": [
          {"url": "http://public.localhost:5000/v3", "region": "RegionOne", "interface": "public", "id": "e-1"}
        ]
      },
      {
        "type": "compute",
        "id": "s-2",
        "endpoints": [
          {"url": "http://nova.localhost:8774/v2.1", "region_id": "RegionTwo", "region": "RegionTwo", "interface": "public", "id": "e-2"}
        ]
      }
    ]
  }
}`

const v3UnscopedFederatedBody = `{
  "token": {
    "methods": ["mapped"],
    "expires_at": "2031-03-06T15:19:27Z",
    "user": {
      "id": "fed-user",
      "name": "fed",
      "OS-FEDERATION": {
        "identity_provider": {"id": "acme"},
        "protocol": {"id": "oidc"},
        "groups": []
      }
    }
  }
}`

const v2ScopedBody = `{
  "access": {
    "token": {
      "id": "v2-token-id",
      "expires": "2031-03-06T15:19:27Z",
      "tenant": {"id": "t-1", "name": "tenant_one", "enabled": true}
    },
    "user": {
      "id": "u-2",
      "name": "gabriel",
      "roles": [{"name": "Member"}]
    },
    "serviceCatalog": [
      {
        "type": "compute",
        "name": "nova",
        "endpoints": [
          {
            "region": "RegionOne",
            "publicURL": "http://nova-public.localhost:8774/v2.0/t-1",
            "internalURL": "http://nova-internal.localhost:8774/v2.0/t-1",
            "adminURL": "http://nova-admin.localhost:8774/v2.0/t-1"
          }
        ]
      }
    ]
  }
}`
